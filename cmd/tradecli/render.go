package main

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/betbot/tradeweb/pkg/sdk/api"
)

const timeLayout = "2006-01-02 15:04:05"

const emptyList = "(无数据)"

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}

func renderSymbols(symbols []api.Symbol) string {
	if len(symbols) == 0 {
		return emptyList
	}
	t := newTable("ID", "Ticker", "Name")
	for _, s := range symbols {
		t.Row(strconv.Itoa(s.ID), s.Ticker, s.Name)
	}
	return t.Render()
}

func renderOrders(orders []api.Order) string {
	if len(orders) == 0 {
		return emptyList
	}
	t := newTable("ID", "Ticker", "Side", "Type", "Qty", "Filled", "Price", "Status", "Time")
	for _, o := range orders {
		price := o.Price.String()
		if o.Type == api.OrderTypeMarket {
			price = "MKT"
		}
		t.Row(
			strconv.Itoa(o.ID),
			o.Ticker,
			o.Side.Label(),
			o.Type.Label(),
			strconv.Itoa(o.Quantity),
			strconv.Itoa(o.ExecQty),
			price,
			string(o.Status),
			formatTime(o.Timestamp),
		)
	}
	return t.Render()
}

func renderTrades(trades []api.Trade) string {
	if len(trades) == 0 {
		return emptyList
	}
	t := newTable("ID", "Ticker", "Price", "Qty", "Buy Order", "Sell Order", "Time")
	for _, tr := range trades {
		t.Row(
			strconv.Itoa(tr.ID),
			tr.Ticker,
			tr.TradePrice.String(),
			tr.TradeQuantity.String(),
			strconv.Itoa(tr.BuyOrderID),
			strconv.Itoa(tr.SellOrderID),
			formatTime(tr.Timestamp),
		)
	}
	return t.Render()
}

func formatTime(ts api.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Format(timeLayout)
}
