// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/pkg/errors"
)

// webhookSecretBytes is the entropy behind a generated signing secret. The
// hex encoding doubles it on the wire.
const webhookSecretBytes = 32

// NewWebhookSecret generates a fresh signing secret with 32 bytes of entropy,
// hex encoded.
func NewWebhookSecret() (string, error) {
	b := make([]byte, webhookSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "failed to generate webhook secret")
	}

	return hex.EncodeToString(b), nil
}
