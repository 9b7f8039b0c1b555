package vendors

import (
	"context"
	"errors"
	"io"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFTP struct {
	loginErr  error
	modified  time.Time
	content   string
	retrCalls int
	quitCalls int
}

func (f *fakeFTP) Login(user, password string) error { return f.loginErr }

func (f *fakeFTP) GetTime(path string) (time.Time, error) {
	if f.modified.IsZero() {
		return time.Time{}, errors.New("MDTM not supported")
	}
	return f.modified, nil
}

func (f *fakeFTP) Retr(path string) (io.ReadCloser, error) {
	f.retrCalls++
	return io.NopCloser(strings.NewReader(f.content)), nil
}

func (f *fakeFTP) Quit() error {
	f.quitCalls++
	return nil
}

func newTestFTP(conn *fakeFTP) *FTPCSVAdapter {
	a := NewFTPCSVAdapter(FTPCSVOptions{Vendor: "prairie", Addr: "ftp.example.com", Path: "/catalog.csv", Retry: fastRetry})
	a.dial = func(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error) {
		return conn, nil
	}
	return a
}

func TestFTPCSVFetch(t *testing.T) {
	conn := &fakeFTP{content: "UPC_Code,Item_No,Brand\n000111222333,P-1,acme\n000111222334,P-2,\"Big, Co\"\n"}

	records, err := newTestFTP(conn).Fetch(context.Background(), FetchRequest{Credentials: Credentials{Username: "u", Password: "p"}})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "000111222333", records[0]["upc_code"])
	assert.Equal(t, "Big, Co", records[1]["brand"])
	assert.Equal(t, 1, conn.quitCalls)
}

func TestFTPCSVFetch_LoginRejected(t *testing.T) {
	conn := &fakeFTP{loginErr: &textproto.Error{Code: ftp.StatusNotLoggedIn, Msg: "Login incorrect."}}

	_, err := newTestFTP(conn).Fetch(context.Background(), FetchRequest{})
	assert.ErrorIs(t, err, ErrAuth)
	assert.Zero(t, conn.retrCalls)
}

func TestFTPCSVFetch_IncrementalSkipsUnchangedFile(t *testing.T) {
	modified := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	since := modified.Add(time.Hour)
	conn := &fakeFTP{modified: modified, content: "upc\n000111222333\n"}

	records, err := newTestFTP(conn).Fetch(context.Background(), FetchRequest{Since: &since})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Zero(t, conn.retrCalls)

	earlier := modified.Add(-time.Hour)
	records, err = newTestFTP(conn).Fetch(context.Background(), FetchRequest{Since: &earlier})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestFTPCSVFetch_DialFailureIsTransient(t *testing.T) {
	a := NewFTPCSVAdapter(FTPCSVOptions{Vendor: "prairie", Addr: "ftp.example.com:21", Path: "/x.csv", Retry: fastRetry})
	dials := 0
	a.dial = func(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error) {
		dials++
		return nil, errors.New("connection refused")
	}

	_, err := a.Fetch(context.Background(), FetchRequest{})
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, 3, dials)
}

func TestParseCSV(t *testing.T) {
	t.Run("pipe delimited with BOM", func(t *testing.T) {
		records, err := ParseCSV(strings.NewReader("\ufeffupc|name\n000111222333|Scope|extra\n\n000111222334\n"))
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "Scope", records[0]["name"])
		assert.Equal(t, "000111222334", records[1]["upc"])
		_, ok := records[1]["name"]
		assert.False(t, ok)
	})

	t.Run("tab delimited", func(t *testing.T) {
		records, err := ParseCSV(strings.NewReader("upc\tname\n000111222333\tScope\n"))
		require.NoError(t, err)
		assert.Equal(t, "Scope", records[0]["name"])
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := ParseCSV(strings.NewReader(""))
		assert.ErrorIs(t, err, ErrMalformedFeed)
	})
}
