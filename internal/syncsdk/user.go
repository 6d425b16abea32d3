package syncsdk

import (
	"context"
	"time"

	"github.com/imroc/req/v3"
)

const (
	v1UserInfo   = "/api/v1/user/info"
	v1UserGroups = "/api/v1/user/groups"
	v1UserCert   = "/api/v1/user/cert"
)

type UserInfo struct {
	UserID         string `json:"user_id"`
	Email          string `json:"email"`
	DisplayName    string `json:"display_name"`
	KbGUID         string `json:"kb_guid"`
	DatabaseServer string `json:"database_server"`
}

type GroupInfo struct {
	KbGUID         string `json:"kb_guid"`
	Name           string `json:"name"`
	DatabaseServer string `json:"database_server"`
	Role           string `json:"role"`
}

type GroupsResponse struct {
	Groups []GroupInfo `json:"groups"`
}

type CertResponse struct {
	UserID              string    `json:"user_id"`
	PublicKey           string    `json:"public_key"`
	EncryptedPrivateKey string    `json:"encrypted_private_key"`
	ExpiresAt           time.Time `json:"expires_at"`
}

type UserAPI struct {
	client *req.Client
}

func newUserAPI(client *req.Client) *UserAPI {
	return &UserAPI{client: client}
}

func (u *UserAPI) Info(ctx context.Context, token string) (*UserInfo, error) {
	var resp UserInfo
	res, err := u.client.R().
		SetContext(ctx).
		SetBearerAuthToken(token).
		SetSuccessResult(&resp).
		Get(v1UserInfo)

	if err := handleAPIError(res, err, "user info"); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (u *UserAPI) Groups(ctx context.Context, token string) ([]GroupInfo, error) {
	var resp GroupsResponse
	res, err := u.client.R().
		SetContext(ctx).
		SetBearerAuthToken(token).
		SetSuccessResult(&resp).
		Get(v1UserGroups)

	if err := handleAPIError(res, err, "user groups"); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

func (u *UserAPI) Cert(ctx context.Context, token string) (*CertResponse, error) {
	var resp CertResponse
	res, err := u.client.R().
		SetContext(ctx).
		SetBearerAuthToken(token).
		SetSuccessResult(&resp).
		Get(v1UserCert)

	if err := handleAPIError(res, err, "user cert"); err != nil {
		return nil, err
	}
	return &resp, nil
}
