package appstore

import (
	"errors"

	"github.com/awa/go-iap/appstore/api"
)

type Options struct {
	KeyID        string
	KeyContent   string
	BundleID     string
	Issuer       string
	Sandbox      bool
	SharedSecret string
	// Production rejects transactions from the sandbox environment.
	Production bool
}

// NewStoreClient builds an App Store Server API client. It returns nil without
// error when no API key is configured; the verifier then relies on signed
// payloads and receipts only.
func NewStoreClient(opts *Options) (*api.StoreClient, error) {
	if opts == nil {
		return nil, errors.New("opts is nil")
	}
	if opts.KeyID == "" || opts.KeyContent == "" {
		return nil, nil
	}

	c := &api.StoreConfig{
		KeyContent: []byte(opts.KeyContent),
		KeyID:      opts.KeyID,
		BundleID:   opts.BundleID,
		Issuer:     opts.Issuer,
		Sandbox:    opts.Sandbox,
	}

	return api.NewStoreClient(c), nil
}
