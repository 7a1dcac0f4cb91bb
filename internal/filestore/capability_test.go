package filestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectBackend(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		caps         Capabilities
		forceBracket bool
		want         BackendKind
	}{
		{"usertrans preferred", Capabilities{UserTrans: true, TransStartEnd: true}, false, BackendUserTrans},
		{"usertrans overridden by force bracket", Capabilities{UserTrans: true, TransStartEnd: true}, true, BackendBracket},
		{"bracket only", Capabilities{TransStartEnd: true}, false, BackendBracket},
		{"bracket only, force has nothing to add", Capabilities{TransStartEnd: true}, true, BackendBracket},
		{"nothing available", Capabilities{}, false, BackendPosix},
		{"nothing available, force cannot conjure bracket", Capabilities{}, true, BackendPosix},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := SelectBackend(tc.caps, tc.forceBracket)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBackendKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "posix", BackendPosix.String())
	assert.Equal(t, "bracket", BackendBracket.String())
	assert.Equal(t, "usertrans", BackendUserTrans.String())
}
