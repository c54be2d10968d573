// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package native

import "fmt"

// A Code is a numeric error code reported by a native engine, either as
// the immediate result of a call or inside a StatusRequestError
// callback. Code implements error so engines can return it directly.
type Code uint32

// Generic system codes.
const (
	ErrInvalidHandle      Code = 6
	ErrNotEnoughMemory    Code = 8
	ErrInvalidParameter   Code = 87
	ErrInsufficientBuffer Code = 122
)

// Engine codes, numbered as the Windows asynchronous HTTP engine
// numbers them.
const (
	ErrOutOfHandles                      Code = 12001
	ErrTimeout                           Code = 12002
	ErrInternal                          Code = 12004
	ErrInvalidURL                        Code = 12005
	ErrUnrecognizedScheme                Code = 12006
	ErrNameNotResolved                   Code = 12007
	ErrInvalidOption                     Code = 12009
	ErrOptionNotSettable                 Code = 12011
	ErrShutdown                          Code = 12012
	ErrLoginFailure                      Code = 12015
	ErrOperationCancelled                Code = 12017
	ErrIncorrectHandleType               Code = 12018
	ErrIncorrectHandleState              Code = 12019
	ErrCannotConnect                     Code = 12029
	ErrConnectionError                   Code = 12030
	ErrResendRequest                     Code = 12032
	ErrSecureCertDateInvalid             Code = 12037
	ErrSecureCertCNInvalid               Code = 12038
	ErrClientAuthCertNeeded              Code = 12044
	ErrSecureInvalidCA                   Code = 12045
	ErrSecureCertRevFailed               Code = 12057
	ErrCannotCallBeforeOpen              Code = 12100
	ErrCannotCallBeforeSend              Code = 12101
	ErrCannotCallAfterSend               Code = 12102
	ErrCannotCallAfterOpen               Code = 12103
	ErrHeaderNotFound                    Code = 12150
	ErrInvalidServerResponse             Code = 12152
	ErrInvalidHeader                     Code = 12153
	ErrInvalidQueryRequest               Code = 12154
	ErrHeaderAlreadyExists               Code = 12155
	ErrRedirectFailed                    Code = 12156
	ErrSecureChannelError                Code = 12157
	ErrBadAutoProxyScript                Code = 12166
	ErrUnableToDownloadScript            Code = 12167
	ErrSecureInvalidCert                 Code = 12169
	ErrSecureCertRevoked                 Code = 12170
	ErrNotInitialized                    Code = 12172
	ErrSecureFailure                     Code = 12175
	ErrUnhandledScriptType               Code = 12176
	ErrScriptExecutionError              Code = 12177
	ErrAutoProxyServiceError             Code = 12178
	ErrSecureCertWrongUsage              Code = 12179
	ErrAutodetectionFailed               Code = 12180
	ErrHeaderCountExceeded               Code = 12181
	ErrHeaderSizeOverflow                Code = 12182
	ErrChunkedEncodingHeaderSizeOverflow Code = 12183
	ErrResponseDrainOverflow             Code = 12184
	ErrClientCertNoPrivateKey            Code = 12185
	ErrClientCertNoAccessPrivateKey      Code = 12186
	ErrClientAuthCertNeededProxy         Code = 12187
	ErrSecureFailureProxy                Code = 12188
	ErrReserved189                       Code = 12189
	ErrHTTPProtocolMismatch              Code = 12190
	ErrGlobalCallbackFailed              Code = 12191
	ErrFeatureDisabled                   Code = 12192
)

var codeNames = map[Code]string{
	ErrInvalidHandle:                     "ERROR_INVALID_HANDLE",
	ErrNotEnoughMemory:                   "ERROR_NOT_ENOUGH_MEMORY",
	ErrInvalidParameter:                  "ERROR_INVALID_PARAMETER",
	ErrInsufficientBuffer:                "ERROR_INSUFFICIENT_BUFFER",
	ErrOutOfHandles:                      "ERROR_WINHTTP_OUT_OF_HANDLES",
	ErrTimeout:                           "ERROR_WINHTTP_TIMEOUT",
	ErrInternal:                          "ERROR_WINHTTP_INTERNAL_ERROR",
	ErrInvalidURL:                        "ERROR_WINHTTP_INVALID_URL",
	ErrUnrecognizedScheme:                "ERROR_WINHTTP_UNRECOGNIZED_SCHEME",
	ErrNameNotResolved:                   "ERROR_WINHTTP_NAME_NOT_RESOLVED",
	ErrInvalidOption:                     "ERROR_WINHTTP_INVALID_OPTION",
	ErrOptionNotSettable:                 "ERROR_WINHTTP_OPTION_NOT_SETTABLE",
	ErrShutdown:                          "ERROR_WINHTTP_SHUTDOWN",
	ErrLoginFailure:                      "ERROR_WINHTTP_LOGIN_FAILURE",
	ErrOperationCancelled:                "ERROR_WINHTTP_OPERATION_CANCELLED",
	ErrIncorrectHandleType:               "ERROR_WINHTTP_INCORRECT_HANDLE_TYPE",
	ErrIncorrectHandleState:              "ERROR_WINHTTP_INCORRECT_HANDLE_STATE",
	ErrCannotConnect:                     "ERROR_WINHTTP_CANNOT_CONNECT",
	ErrConnectionError:                   "ERROR_WINHTTP_CONNECTION_ERROR",
	ErrResendRequest:                     "ERROR_WINHTTP_RESEND_REQUEST",
	ErrSecureCertDateInvalid:             "ERROR_WINHTTP_SECURE_CERT_DATE_INVALID",
	ErrSecureCertCNInvalid:               "ERROR_WINHTTP_SECURE_CERT_CN_INVALID",
	ErrClientAuthCertNeeded:              "ERROR_WINHTTP_CLIENT_AUTH_CERT_NEEDED",
	ErrSecureInvalidCA:                   "ERROR_WINHTTP_SECURE_INVALID_CA",
	ErrSecureCertRevFailed:               "ERROR_WINHTTP_SECURE_CERT_REV_FAILED",
	ErrCannotCallBeforeOpen:              "ERROR_WINHTTP_CANNOT_CALL_BEFORE_OPEN",
	ErrCannotCallBeforeSend:              "ERROR_WINHTTP_CANNOT_CALL_BEFORE_SEND",
	ErrCannotCallAfterSend:               "ERROR_WINHTTP_CANNOT_CALL_AFTER_SEND",
	ErrCannotCallAfterOpen:               "ERROR_WINHTTP_CANNOT_CALL_AFTER_OPEN",
	ErrHeaderNotFound:                    "ERROR_WINHTTP_HEADER_NOT_FOUND",
	ErrInvalidServerResponse:             "ERROR_WINHTTP_INVALID_SERVER_RESPONSE",
	ErrInvalidHeader:                     "ERROR_WINHTTP_INVALID_HEADER",
	ErrInvalidQueryRequest:               "ERROR_WINHTTP_INVALID_QUERY_REQUEST",
	ErrHeaderAlreadyExists:               "ERROR_WINHTTP_HEADER_ALREADY_EXISTS",
	ErrRedirectFailed:                    "ERROR_WINHTTP_REDIRECT_FAILED",
	ErrSecureChannelError:                "ERROR_WINHTTP_SECURE_CHANNEL_ERROR",
	ErrBadAutoProxyScript:                "ERROR_WINHTTP_BAD_AUTO_PROXY_SCRIPT",
	ErrUnableToDownloadScript:            "ERROR_WINHTTP_UNABLE_TO_DOWNLOAD_SCRIPT",
	ErrSecureInvalidCert:                 "ERROR_WINHTTP_SECURE_INVALID_CERT",
	ErrSecureCertRevoked:                 "ERROR_WINHTTP_SECURE_CERT_REVOKED",
	ErrNotInitialized:                    "ERROR_WINHTTP_NOT_INITIALIZED",
	ErrSecureFailure:                     "ERROR_WINHTTP_SECURE_FAILURE",
	ErrUnhandledScriptType:               "ERROR_WINHTTP_UNHANDLED_SCRIPT_TYPE",
	ErrScriptExecutionError:              "ERROR_WINHTTP_SCRIPT_EXECUTION_ERROR",
	ErrAutoProxyServiceError:             "ERROR_WINHTTP_AUTO_PROXY_SERVICE_ERROR",
	ErrSecureCertWrongUsage:              "ERROR_WINHTTP_SECURE_CERT_WRONG_USAGE",
	ErrAutodetectionFailed:               "ERROR_WINHTTP_AUTODETECTION_FAILED",
	ErrHeaderCountExceeded:               "ERROR_WINHTTP_HEADER_COUNT_EXCEEDED",
	ErrHeaderSizeOverflow:                "ERROR_WINHTTP_HEADER_SIZE_OVERFLOW",
	ErrChunkedEncodingHeaderSizeOverflow: "ERROR_WINHTTP_CHUNKED_ENCODING_HEADER_SIZE_OVERFLOW",
	ErrResponseDrainOverflow:             "ERROR_WINHTTP_RESPONSE_DRAIN_OVERFLOW",
	ErrClientCertNoPrivateKey:            "ERROR_WINHTTP_CLIENT_CERT_NO_PRIVATE_KEY",
	ErrClientCertNoAccessPrivateKey:      "ERROR_WINHTTP_CLIENT_CERT_NO_ACCESS_PRIVATE_KEY",
	ErrClientAuthCertNeededProxy:         "ERROR_WINHTTP_CLIENT_AUTH_CERT_NEEDED_PROXY",
	ErrSecureFailureProxy:                "ERROR_WINHTTP_SECURE_FAILURE_PROXY",
	ErrReserved189:                       "ERROR_WINHTTP_RESERVED_189",
	ErrHTTPProtocolMismatch:              "ERROR_WINHTTP_HTTP_PROTOCOL_MISMATCH",
	ErrGlobalCallbackFailed:              "ERROR_WINHTTP_GLOBAL_CALLBACK_FAILED",
	ErrFeatureDisabled:                   "ERROR_WINHTTP_FEATURE_DISABLED",
}

// Name returns the symbolic name of the code, or the empty string if
// the code is not one this package knows about.
func (c Code) Name() string {
	return codeNames[c]
}

// Error returns the symbolic name and number of the code.
func (c Code) Error() string {
	if name := c.Name(); name != "" {
		return fmt.Sprintf("%s: %d", name, uint32(c))
	}
	return fmt.Sprintf("native error %d", uint32(c))
}
