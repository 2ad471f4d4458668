package bigip

import (
	"errors"
	"fmt"
	"net/http"
)

// ruleResource is the iControl REST representation of an iRule. The rule
// body travels in the apiAnonymous field.
type ruleResource struct {
	Name      string `json:"name,omitempty"`
	Partition string `json:"partition,omitempty"`
	FullPath  string `json:"fullPath,omitempty"`
	Code      string `json:"apiAnonymous,omitempty"`
}

// loginRequest is the body for /mgmt/shared/authn/login.
type loginRequest struct {
	Username          string `json:"username"`
	Password          string `json:"password"`
	LoginProviderName string `json:"loginProviderName"`
}

// loginResponse carries the session token issued by the device.
type loginResponse struct {
	Token struct {
		Token string `json:"token"`
	} `json:"token"`
}

// DeviceError is an HTTP-level error from the device. Code and Message
// come from the standard iControl error body when one was returned.
type DeviceError struct {
	Method     string `json:"-"`
	Path       string `json:"-"`
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: HTTP %d from device: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: HTTP %d from device", e.Method, e.Path, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the device.
func IsNotFound(err error) bool {
	var devErr *DeviceError
	return errors.As(err, &devErr) && devErr.StatusCode == http.StatusNotFound
}
