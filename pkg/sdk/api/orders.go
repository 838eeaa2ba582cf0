package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/betbot/tradeweb/pkg/sdk/apierr"
)

// GetUserOrders 当前用户的订单
func (c *Client) GetUserOrders(ctx context.Context) ([]Order, error) {
	return c.listOrders(ctx, pathMyOrders)
}

// GetAllOrders 全部订单（管理员视图）
func (c *Client) GetAllOrders(ctx context.Context) ([]Order, error) {
	return c.listOrders(ctx, pathOrders)
}

// GetTicker 某个股票的全部订单
func (c *Client) GetTicker(ctx context.Context, symbolID int) ([]Order, error) {
	return c.listOrders(ctx, fmt.Sprintf(pathOrdersBySymbol, symbolID))
}

func (c *Client) listOrders(ctx context.Context, path string) ([]Order, error) {
	var orders []Order
	if err := c.get(ctx, path, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// PostNewOrder 下单
// 市价单不论传入什么价格都发送 price=0
func (c *Client) PostNewOrder(ctx context.Context, o NewOrder) (*Order, error) {
	if err := ValidateOrder(o); err != nil {
		return nil, err
	}
	var order Order
	if err := c.request(ctx, http.MethodPost, pathNewOrder, o.request(), true, &order); err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{
		"order_id":  order.ID,
		"symbol_id": order.SymbolID,
		"side":      order.Side,
		"type":      order.Type,
		"quantity":  order.Quantity,
		"status":    order.Status,
	}).Info("下单成功")
	return &order, nil
}

// CancelActiveOrder 撤单
//
// 同一订单的并发调用只发一次 DELETE；成功后在缓存有效期内再次调用直接返回缓存结果，
// 不会产生第二次撤单。失败不缓存，调用方可以重试。
// 共享的 DELETE 不受任何一个调用方 ctx 取消的影响，每个调用方只按自己的 ctx 放弃等待。
func (c *Client) CancelActiveOrder(ctx context.Context, orderID int) (*Order, error) {
	if orderID <= 0 {
		return nil, &apierr.ValidationError{Field: "order_id", Message: msgInvalidOrderID}
	}
	if order, ok := c.cancelled.Get(orderID); ok {
		c.log.WithField("order_id", orderID).Debug("订单已撤销，返回缓存结果")
		return &order, nil
	}

	path := fmt.Sprintf(pathCancelOrder, orderID)
	shared := context.WithoutCancel(ctx)
	ch := c.cancelGroup.DoChan(strconv.Itoa(orderID), func() (any, error) {
		if order, ok := c.cancelled.Get(orderID); ok {
			return order, nil
		}
		var order Order
		if err := c.request(shared, http.MethodDelete, path, nil, true, &order); err != nil {
			return nil, err
		}
		c.cancelled.Set(orderID, order, 0)
		return order, nil
	})

	select {
	case <-ctx.Done():
		return nil, &apierr.RequestError{
			Method: http.MethodDelete,
			Path:   path,
			Reason: "Network error: " + ctx.Err().Error(),
			Cause:  ctx.Err(),
		}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		order := res.Val.(Order)
		c.log.WithFields(logrus.Fields{"order_id": orderID, "shared": res.Shared}).Info("撤单成功")
		return &order, nil
	}
}
