//go:build !unix

package aprs

import "errors"

type listener struct{}

type conn struct{}

func listen(string, int, int) (*listener, error) {
	return nil, errors.ErrUnsupported
}

func (l *listener) Addr() string                 { return "" }
func (l *listener) accept() (*conn, bool, error) { return nil, false, nil }
func (l *listener) close() error                 { return nil }
func (c *conn) read([]byte) (int, error)         { return 0, nil }
func (c *conn) close() error                     { return nil }
