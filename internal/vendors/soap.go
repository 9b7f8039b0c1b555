package vendors

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	catalogNS      = "urn:catalog"
)

// SOAPAdapter calls a SOAP 1.1 GetCatalog operation and reads every Item
// element in the response body.
type SOAPAdapter struct {
	vendor      string
	endpoint    string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	retry       RetryPolicy
}

type SOAPOptions struct {
	Vendor      string
	Endpoint    string
	HTTPClient  *http.Client
	RateLimiter *rate.Limiter
	Retry       RetryPolicy
}

func NewSOAPAdapter(opts SOAPOptions) *SOAPAdapter {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.RateLimiter == nil {
		opts.RateLimiter = rate.NewLimiter(rate.Inf, 1)
	}

	return &SOAPAdapter{
		vendor:      opts.Vendor,
		endpoint:    opts.Endpoint,
		httpClient:  opts.HTTPClient,
		rateLimiter: opts.RateLimiter,
		retry:       opts.Retry,
	}
}

type soapEnvelope struct {
	XMLName xml.Name   `xml:"soap:Envelope"`
	SoapNS  string     `xml:"xmlns:soap,attr"`
	Header  soapHeader `xml:"soap:Header"`
	Body    soapBody   `xml:"soap:Body"`
}

type soapHeader struct {
	Auth authHeader `xml:"urn:catalog AuthHeader"`
}

type authHeader struct {
	Username  string `xml:"Username"`
	Password  string `xml:"Password"`
	AccountID string `xml:"AccountID,omitempty"`
}

type soapBody struct {
	GetCatalog getCatalog `xml:"urn:catalog GetCatalog"`
}

type getCatalog struct {
	ModifiedSince string `xml:"ModifiedSince,omitempty"`
	MaxRecords    int    `xml:"MaxRecords,omitempty"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

func (a *SOAPAdapter) Fetch(ctx context.Context, req FetchRequest) ([]RawRecord, error) {
	call := getCatalog{}
	if req.Since != nil {
		call.ModifiedSince = req.Since.UTC().Format(time.RFC3339)
	}

	records, err := withRetry(ctx, a.retry, a.vendor, func() ([]RawRecord, error) {
		return a.call(ctx, req.Credentials, call)
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"vendor":  a.vendor,
		"records": len(records),
	}).Debug("SOAP feed fetched")

	return records, nil
}

func (a *SOAPAdapter) TestConnection(ctx context.Context, creds Credentials) error {
	call := getCatalog{MaxRecords: 1}
	_, err := withRetry(ctx, a.retry, a.vendor, func() ([]RawRecord, error) {
		return a.call(ctx, creds, call)
	})
	return err
}

func (a *SOAPAdapter) call(ctx context.Context, creds Credentials, call getCatalog) ([]RawRecord, error) {
	if err := a.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	env := soapEnvelope{
		SoapNS: soapEnvelopeNS,
		Header: soapHeader{Auth: authHeader{
			Username:  creds.Username,
			Password:  creds.Password,
			AccountID: creds.AccountID,
		}},
		Body: soapBody{GetCatalog: call},
	}
	payload, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(append([]byte(xml.Header), payload...)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedConfig, err)
	}
	httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")
	httpReq.Header.Set("SOAPAction", catalogNS+"/GetCatalog")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrTransient, err)
	}

	// SOAP 1.1 reports faults with status 500, so the body is inspected first.
	records, err := parseSOAPResponse(body)
	if err != nil {
		var fault *faultError
		if errors.As(err, &fault) {
			return nil, err
		}
		if statusErr := classifyStatus(resp.StatusCode, body); statusErr != nil {
			return nil, statusErr
		}
		return nil, err
	}
	if statusErr := classifyStatus(resp.StatusCode, body); statusErr != nil {
		return nil, statusErr
	}
	return records, nil
}

type faultError struct {
	kind  error
	fault soapFault
}

func (e *faultError) Error() string {
	return fmt.Sprintf("%v: soap fault %s: %s", e.kind, e.fault.Code, e.fault.String)
}

func (e *faultError) Unwrap() error { return e.kind }

func classifyFault(f soapFault) error {
	code := strings.ToLower(f.Code)
	if i := strings.LastIndex(code, ":"); i >= 0 {
		code = code[i+1:]
	}
	text := strings.ToLower(f.String)

	kind := ErrMalformedFeed
	switch {
	case strings.Contains(code, "auth") || strings.Contains(text, "authentication") || strings.Contains(text, "unauthorized"):
		kind = ErrAuth
	case strings.HasPrefix(code, "server"):
		kind = ErrTransient
	}
	return &faultError{kind: kind, fault: f}
}

// parseSOAPResponse collects every Item element under the SOAP Body. Leaf
// children become record keys by local name; nested children are dotted.
func parseSOAPResponse(body []byte) ([]RawRecord, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))

	inBody := false
	records := []RawRecord{}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch {
		case se.Name.Local == "Body":
			inBody = true
		case inBody && se.Name.Local == "Fault":
			var f soapFault
			if err := dec.DecodeElement(&f, &se); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
			}
			return nil, classifyFault(f)
		case inBody && se.Name.Local == "Item":
			rec, err := decodeItem(dec)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
	}

	if !inBody {
		return nil, fmt.Errorf("%w: missing SOAP body", ErrMalformedFeed)
	}
	return records, nil
}

func decodeItem(dec *xml.Decoder) (RawRecord, error) {
	rec := RawRecord{}
	var path []string
	var hasChild []bool
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(hasChild) > 0 {
				hasChild[len(hasChild)-1] = true
			}
			path = append(path, t.Name.Local)
			hasChild = append(hasChild, false)
			text.Reset()
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if len(path) == 0 {
				return rec, nil
			}
			last := len(path) - 1
			if !hasChild[last] {
				key := strings.Join(path, ".")
				value := strings.TrimSpace(text.String())
				if prev, ok := rec[key]; ok && prev != "" {
					value = prev + "|" + value
				}
				rec[key] = value
			}
			path = path[:last]
			hasChild = hasChild[:last]
			text.Reset()
		}
	}
}
