package speedtest

import (
	"context"
	"fmt"

	st "github.com/showwin/speedtest-go/speedtest"
)

// LookupISP asks speedtest.net who we are. It is the default ISPLookupFunc.
func LookupISP(ctx context.Context) (isp, ip string, err error) {
	// IMPORTANT: avoid package-level speedtest helpers; speedtest-go keeps package-level state.
	stc := st.New()
	user, err := stc.FetchUserInfoContext(ctx)
	if err != nil {
		return "", "", fmt.Errorf("fetch user info: %w", err)
	}
	if user == nil {
		return "", "", fmt.Errorf("fetch user info: empty response")
	}
	return user.Isp, user.IP, nil
}
