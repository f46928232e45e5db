package clientlib

import (
	"net/http"
	"net/url"
	"time"
)

const DefaultServerURL string = "http://127.0.0.1:16001"

// Client 以 User 的身份调用服务端接口
type Client struct {
	ServerURL string
	User      *User
	HTTP      *http.Client
}

// NewClient 检查 serverURL 是否合法，不合法时使用默认值
func NewClient(serverURL string, u *User) *Client {
	if _, err := url.ParseRequestURI(serverURL); err != nil {
		serverURL = DefaultServerURL
	}
	return &Client{
		ServerURL: serverURL,
		User:      u,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}
}
