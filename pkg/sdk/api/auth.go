package api

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

// Register 注册新用户
func (c *Client) Register(ctx context.Context, r Registration) (*User, error) {
	if err := ValidateRegistration(r); err != nil {
		return nil, err
	}
	var user User
	if err := c.request(ctx, http.MethodPost, pathRegister, r, false, &user); err != nil {
		return nil, err
	}
	c.log.WithField("username", user.Username).Info("注册成功")
	return &user, nil
}

// Login 登录并返回 token；不会写入凭证存储
func (c *Client) Login(ctx context.Context, cred Credentials) (*Token, error) {
	if err := ValidateUser(cred); err != nil {
		return nil, err
	}
	var token Token
	if err := c.request(ctx, http.MethodPost, pathLogin, cred, false, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, errors.New("登录响应缺少 access_token")
	}
	return &token, nil
}

// LoginAndStore 登录并保存 token，之后的请求自动携带
func (c *Client) LoginAndStore(ctx context.Context, cred Credentials) error {
	token, err := c.Login(ctx, cred)
	if err != nil {
		return err
	}
	if err := c.Session().Set(token.AccessToken); err != nil {
		return errors.Wrap(err, "保存 token 失败")
	}
	// 换了用户，之前的撤单结果不再适用
	c.cancelled.Clear()
	c.log.WithField("username", cred.Username).Info("登录成功")
	return nil
}

// Logout 清除本地 token
func (c *Client) Logout() error {
	c.cancelled.Clear()
	if err := c.Session().Clear(); err != nil {
		return errors.Wrap(err, "清除 token 失败")
	}
	return nil
}

// GetUserPage 当前用户信息
func (c *Client) GetUserPage(ctx context.Context) (*User, error) {
	var user User
	if err := c.get(ctx, pathMe, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
