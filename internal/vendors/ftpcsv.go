package vendors

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/sirupsen/logrus"
)

// ftpConn is the part of *ftp.ServerConn the adapter uses.
type ftpConn interface {
	Login(user, password string) error
	GetTime(path string) (time.Time, error)
	Retr(path string) (io.ReadCloser, error)
	Quit() error
}

type ftpDialer func(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error)

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	return c.ServerConn.Retr(path)
}

func dialFTP(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error) {
	conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(timeout))
	if err != nil {
		return nil, err
	}
	return serverConn{conn}, nil
}

// FTPCSVAdapter downloads a delimited catalog file over FTP. The header row
// names the record keys.
type FTPCSVAdapter struct {
	vendor  string
	addr    string
	path    string
	timeout time.Duration
	retry   RetryPolicy
	dial    ftpDialer
}

type FTPCSVOptions struct {
	Vendor  string
	Addr    string
	Path    string
	Timeout time.Duration
	Retry   RetryPolicy
}

func NewFTPCSVAdapter(opts FTPCSVOptions) *FTPCSVAdapter {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	addr := opts.Addr
	if !strings.Contains(addr, ":") {
		addr += ":21"
	}

	return &FTPCSVAdapter{
		vendor:  opts.Vendor,
		addr:    addr,
		path:    opts.Path,
		timeout: opts.Timeout,
		retry:   opts.Retry,
		dial:    dialFTP,
	}
}

func (a *FTPCSVAdapter) Fetch(ctx context.Context, req FetchRequest) ([]RawRecord, error) {
	records, err := withRetry(ctx, a.retry, a.vendor, func() ([]RawRecord, error) {
		return a.download(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"vendor":  a.vendor,
		"path":    a.path,
		"records": len(records),
	}).Debug("FTP feed fetched")

	return records, nil
}

func (a *FTPCSVAdapter) TestConnection(ctx context.Context, creds Credentials) error {
	_, err := withRetry(ctx, a.retry, a.vendor, func() (struct{}, error) {
		conn, err := a.open(ctx, creds)
		if err != nil {
			return struct{}{}, err
		}
		defer conn.Quit()
		return struct{}{}, nil
	})
	return err
}

func (a *FTPCSVAdapter) open(ctx context.Context, creds Credentials) (ftpConn, error) {
	conn, err := a.dial(ctx, a.addr, a.timeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	user := creds.Username
	if user == "" {
		user = "anonymous"
	}
	if err := conn.Login(user, creds.Password); err != nil {
		conn.Quit()
		return nil, classifyFTPError(err)
	}
	return conn, nil
}

func (a *FTPCSVAdapter) download(ctx context.Context, req FetchRequest) ([]RawRecord, error) {
	conn, err := a.open(ctx, req.Credentials)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	if req.Since != nil {
		modified, err := conn.GetTime(a.path)
		if err == nil && !modified.After(*req.Since) {
			logrus.WithFields(logrus.Fields{
				"vendor":   a.vendor,
				"modified": modified,
			}).Info("FTP feed unchanged since last sync")
			return []RawRecord{}, nil
		}
	}

	r, err := conn.Retr(a.path)
	if err != nil {
		return nil, classifyFTPError(err)
	}
	defer r.Close()

	return ParseCSV(r)
}

func classifyFTPError(err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		switch {
		case protoErr.Code == ftp.StatusNotLoggedIn:
			return fmt.Errorf("%w: %v", ErrAuth, err)
		case protoErr.Code == ftp.StatusFileUnavailable:
			return fmt.Errorf("%w: %v", ErrFeedConfig, err)
		case protoErr.Code >= 400 && protoErr.Code < 500:
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// ParseCSV reads a delimited file whose first row is the header. Comma, pipe
// and tab delimiters are detected from the header.
func ParseCSV(r io.Reader) ([]RawRecord, error) {
	br := bufio.NewReader(r)
	headerLine, err := br.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	reader := csv.NewReader(br)
	reader.Comma = sniffDelimiter(string(headerLine))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrMalformedFeed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedFeed, err)
	}
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	records := []RawRecord{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}

		rec := make(RawRecord, len(header))
		for i, value := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			rec[header[i]] = strings.TrimSpace(value)
		}
		records = append(records, rec)
	}

	return records, nil
}

func sniffDelimiter(sample string) rune {
	if i := strings.IndexAny(sample, "\r\n"); i >= 0 {
		sample = sample[:i]
	}
	best, bestCount := ',', strings.Count(sample, ",")
	for _, d := range []rune{'|', '\t'} {
		if n := strings.Count(sample, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
