// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWebhookSecret(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		secret, err := NewWebhookSecret()
		require.NoError(t, err)

		assert.Len(t, secret, 2*webhookSecretBytes)
		assert.Regexp(t, "^[0-9a-f]+$", secret)
		assert.GreaterOrEqual(t, len(secret), SubscriptionSecretMinLength)
		assert.False(t, seen[secret], "secrets must not repeat")
		seen[secret] = true
	}
}
