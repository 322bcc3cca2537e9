package appstore

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt"
)

const appleRootCAG3RootPem = `-----BEGIN CERTIFICATE-----
MIICQzCCAcmgAwIBAgIILcX8iNLFS5UwCgYIKoZIzj0EAwMwZzEbMBkGA1UEAwwS
QXBwbGUgUm9vdCBDQSAtIEczMSYwJAYDVQQLDB1BcHBsZSBDZXJ0aWZpY2F0aW9u
IEF1dGhvcml0eTETMBEGA1UECgwKQXBwbGUgSW5jLjELMAkGA1UEBhMCVVMwHhcN
MTQwNDMwMTgxOTA2WhcNMzkwNDMwMTgxOTA2WjBnMRswGQYDVQQDDBJBcHBsZSBS
b290IENBIC0gRzMxJjAkBgNVBAsMHUFwcGxlIENlcnRpZmljYXRpb24gQXV0aG9y
aXR5MRMwEQYDVQQKDApBcHBsZSBJbmMuMQswCQYDVQQGEwJVUzB2MBAGByqGSM49
AgEGBSuBBAAiA2IABJjpLz1AcqTtkyJygRMc3RCV8cWjTnHcFBbZDuWmBSp3ZHtf
TjjTuxxEtX/1H7YyYl3J6YRbTzBPEVoA/VhYDKX1DyxNB0cTddqXl5dvMVztK517
IDvYuVTZXpmkOlEKMaNCMEAwHQYDVR0OBBYEFLuw3qFYM4iapIqZ3r6966/ayySr
MA8GA1UdEwEB/wQFMAMBAf8wDgYDVR0PAQH/BAQDAgEGMAoGCCqGSM49BAMDA2gA
MGUCMQCD6cHEFl4aXTQY2e3v9GwOAEZLuN+yRhHFD/3meoyhpmvOwgPUnPWTxnS4
at+qIxUCMG1mihDK1A3UT82NQz60imOlM27jbdoXt2QfyFMm+YhidDkLF1vLUagM
6BgD56KyKA==
-----END CERTIFICATE-----`

var ErrMalformedJWS = errors.New("malformed signed transaction")

type jwsHeader struct {
	Alg string   `json:"alg"`
	X5c []string `json:"x5c"`
}

// TransactionClaims is the StoreKit 2 signed transaction payload.
type TransactionClaims struct {
	jwt.StandardClaims
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	BundleID              string `json:"bundleId"`
	ProductID             string `json:"productId"`
	PurchaseDate          int64  `json:"purchaseDate"`
	Type                  string `json:"type"`
	Environment           string `json:"environment"`
}

// DecodeSignedTransaction verifies the x5c chain against the Apple root and
// the token signature against the leaf certificate.
func DecodeSignedTransaction(signed string) (*TransactionClaims, error) {
	return decodeSignedTransaction(signed, appleRootCAG3RootPem)
}

func decodeSignedTransaction(signed, rootPem string) (*TransactionClaims, error) {
	certs, err := extractChain(signed)
	if err != nil {
		return nil, err
	}
	if err := verifyChain(certs, rootPem); err != nil {
		return nil, fmt.Errorf("failed to verify certificate chain: %w", err)
	}

	claims := &TransactionClaims{}
	_, err = jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		pk, ok := certs[0].PublicKey.(*ecdsa.PublicKey)
		if !ok {
			return nil, errors.New("appstore public key must be of type ecdsa.PublicKey")
		}
		return pk, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse signed transaction: %w", err)
	}
	return claims, nil
}

// extractChain returns leaf, intermediate and root from the x5c header.
func extractChain(signed string) ([]*x509.Certificate, error) {
	parts := strings.Split(signed, ".")
	if len(parts) != 3 {
		return nil, ErrMalformedJWS
	}
	headerByte, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJWS, err)
	}
	var header jwsHeader
	if err := json.Unmarshal(headerByte, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJWS, err)
	}
	if len(header.X5c) < 3 {
		return nil, fmt.Errorf("%w: x5c chain has %d certificates", ErrMalformedJWS, len(header.X5c))
	}

	certs := make([]*x509.Certificate, 0, 3)
	for _, raw := range header.X5c[:3] {
		der, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedJWS, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedJWS, err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

func verifyChain(certs []*x509.Certificate, rootPem string) error {
	roots := x509.NewCertPool()
	if ok := roots.AppendCertsFromPEM([]byte(rootPem)); !ok {
		return errors.New("root certificate couldn't be parsed")
	}
	intermediates := x509.NewCertPool()
	intermediates.AddCert(certs[1])

	_, err := certs[0].Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	return err
}
