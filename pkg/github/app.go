/*
Copyright 2022 The Towline Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package github

import (
	"crypto/rsa"
	"fmt"
	"sync"
	"time"

	jwt "github.com/dgrijalva/jwt-go/v4"
)

// AppAuth mints installation tokens for a GitHub App. Tokens are cached
// until shortly before their one hour expiry.
type AppAuth struct {
	appID          string
	installationID int64
	privateKey     *rsa.PrivateKey
	client         *Client

	mut     sync.Mutex
	token   string
	expires time.Time
}

// NewAppAuth parses the PEM-encoded app key and prepares a token source
// for the given installation. The client is used for the token exchange
// only.
func NewAppAuth(appID string, installationID int64, privateKeyPEM []byte, client *Client) (*AppAuth, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing app private key: %w", err)
	}
	return &AppAuth{
		appID:          appID,
		installationID: installationID,
		privateKey:     key,
		client:         client,
	}, nil
}

// appJWT signs a short-lived JWT identifying the app itself. Issued-at is
// backdated a minute to absorb clock skew on the forge side.
func (a *AppAuth) appJWT() (string, error) {
	now := time.Now()
	claims := &jwt.StandardClaims{
		IssuedAt:  jwt.At(now.Add(-time.Minute)),
		ExpiresAt: jwt.At(now.Add(9 * time.Minute)),
		Issuer:    a.appID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.privateKey)
}

// Token returns a valid installation token, refreshing it when the cached
// one is within five minutes of expiry.
func (a *AppAuth) Token() ([]byte, error) {
	a.mut.Lock()
	defer a.mut.Unlock()
	if a.token != "" && time.Until(a.expires) > 5*time.Minute {
		return []byte(a.token), nil
	}
	appJWT, err := a.appJWT()
	if err != nil {
		return nil, fmt.Errorf("signing app JWT: %w", err)
	}
	token, err := a.client.CreateAppInstallationToken(appJWT, a.installationID)
	if err != nil {
		return nil, err
	}
	a.token = token
	a.expires = time.Now().Add(time.Hour)
	return []byte(token), nil
}
