package control

import (
	"errors"
	"testing"

	"main/pkg/exception"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr error
		wantOp  Op
	}{
		{"request login", `{"op":"requestLogin","userId":"u1","identity":"+47"}`, nil, OpRequestLogin},
		{"cancel login", `{"op":"cancelLogin","userId":"u1"}`, nil, OpCancelLogin},
		{"restore", `{"op":"restore","userId":"u1"}`, nil, OpRestore},
		{"get channels", `{"op":"getChannels","userId":"u1","limit":50}`, nil, OpGetChannels},
		{"subscribe", `{"op":"subscribeChannel","userId":"u1","channelId":"100","title":"alerts"}`, nil, OpSubscribeChannel},
		{"unsubscribe", `{"op":"unsubscribeChannel","userId":"u1","channelId":"100"}`, nil, OpUnsubscribeChannel},
		{"disconnect", `{"op":"disconnect","userId":"u1"}`, nil, OpDisconnect},

		{"garbage", `{not json`, exception.ErrControlInvalidRequest, ""},
		{"missing user", `{"op":"restore"}`, exception.ErrControlInvalidRequest, ""},
		{"login without identity", `{"op":"requestLogin","userId":"u1"}`, exception.ErrControlInvalidRequest, ""},
		{"subscribe without channel", `{"op":"subscribeChannel","userId":"u1"}`, exception.ErrControlInvalidRequest, ""},
		{"unknown op", `{"op":"selfDestruct","userId":"u1"}`, exception.ErrControlUnknownCommand, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := ParseCommand([]byte(tc.raw))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if cmd.Op != tc.wantOp {
				t.Fatalf("op = %q, want %q", cmd.Op, tc.wantOp)
			}
		})
	}
}
