// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

func SToP(s string) *string {
	return &s
}

func BToP(b bool) *bool {
	return &b
}
