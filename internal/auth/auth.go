// Package auth selects how outbound Key2Pay calls are authenticated:
// credentials embedded in the request body, an API-key header, a bearer
// token, or an HMAC-SHA256 signature over the canonical request body.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"time"
)

type Type string

const (
	TypeBasic  Type = "basic"
	TypeAPIKey Type = "api_key"
	TypeBearer Type = "bearer"
	TypeSigned Type = "signed"
)

func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeBasic, TypeAPIKey, TypeBearer, TypeSigned:
		return Type(s), nil
	}
	return "", fmt.Errorf("unknown auth type %q", s)
}

type Credentials struct {
	MerchantID  string
	Password    string
	APIKey      string
	SecretKey   string
	AccessToken string
}

type Strategy struct {
	Type        Type
	Credentials Credentials
}

// Headers returns the additional request headers for the selected mode.
func (s Strategy) Headers() map[string]string {
	headers := map[string]string{}
	switch s.Type {
	case TypeBasic:
		// Credentials travel in the body, no headers needed.
	case TypeAPIKey:
		if s.Credentials.APIKey != "" {
			headers["X-API-Key"] = s.Credentials.APIKey
		}
	case TypeBearer:
		if s.Credentials.AccessToken != "" {
			headers["Authorization"] = "Bearer " + s.Credentials.AccessToken
		}
	case TypeSigned:
		if s.Credentials.APIKey != "" {
			headers["X-API-Key"] = s.Credentials.APIKey
		}
	}
	return headers
}

// ApplyToBody embeds mode-specific fields into the outbound request body
// and returns it.
func (s Strategy) ApplyToBody(body map[string]any) map[string]any {
	switch s.Type {
	case TypeBasic:
		body["merchantid"] = s.Credentials.MerchantID
		body["password"] = s.Credentials.Password
	case TypeAPIKey:
		if s.Credentials.APIKey != "" {
			body["api_key"] = s.Credentials.APIKey
		}
	case TypeSigned:
		body["timestamp"] = time.Now().Unix()
	}
	return body
}

// SignRequest appends an HMAC-SHA256 hex signature over the canonical form
// of body. Without a secret key the body is returned untouched.
func (s Strategy) SignRequest(body map[string]any, endpoint string) map[string]any {
	if s.Credentials.SecretKey == "" {
		return body
	}
	mac := hmac.New(sha256.New, []byte(s.Credentials.SecretKey))
	mac.Write([]byte(SignatureString(body, endpoint)))
	body["signature"] = hex.EncodeToString(mac.Sum(nil))
	return body
}

// SignatureString builds the canonical signing input: all top-level
// parameters sorted by key and URL-encoded, optionally prefixed with the
// target endpoint path.
func SignatureString(body map[string]any, endpoint string) string {
	vals := url.Values{}
	for k, v := range body {
		switch nested := v.(type) {
		case map[string]any:
			keys := make([]string, 0, len(nested))
			for nk := range nested {
				keys = append(keys, nk)
			}
			sort.Strings(keys)
			for _, nk := range keys {
				vals.Set(fmt.Sprintf("%s[%s]", k, nk), fmt.Sprint(nested[nk]))
			}
		default:
			vals.Set(k, fmt.Sprint(v))
		}
	}
	query := vals.Encode()
	if endpoint != "" {
		return endpoint + "?" + query
	}
	return query
}

// VerifySignature recomputes the HMAC-SHA256 digest of payload and compares
// it to the supplied hex signature in constant time.
func (s Strategy) VerifySignature(payload []byte, signature string) bool {
	if s.Credentials.SecretKey == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.Credentials.SecretKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// IsConfigured reports whether the minimum secrets for the selected mode are
// present. Advisory only; it never blocks a call.
func (s Strategy) IsConfigured() bool {
	switch s.Type {
	case TypeBasic:
		return s.Credentials.MerchantID != "" && s.Credentials.Password != ""
	case TypeAPIKey:
		return s.Credentials.APIKey != ""
	case TypeBearer:
		return s.Credentials.AccessToken != ""
	case TypeSigned:
		return s.Credentials.APIKey != "" && s.Credentials.SecretKey != ""
	}
	return false
}
