package vendors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogResponse = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <GetCatalogResponse xmlns="urn:catalog">
      <GetCatalogResult>
        <Item>
          <UPC>000111222333</UPC>
          <ItemNo>CS-100</ItemNo>
          <Manufacturer>OPTIX ARMS</Manufacturer>
          <MfgPartNo>A1</MfgPartNo>
          <MfgPartNo>A2</MfgPartNo>
          <Images><LargeImage>http://img/large.jpg</LargeImage></Images>
        </Item>
        <Item>
          <UPC>000111222334</UPC>
          <ItemType>Freight</ItemType>
        </Item>
      </GetCatalogResult>
    </GetCatalogResponse>
  </soap:Body>
</soap:Envelope>`

const faultTemplate = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <soap:Fault>
      <faultcode>%s</faultcode>
      <faultstring>%s</faultstring>
    </soap:Fault>
  </soap:Body>
</soap:Envelope>`

func newTestSOAP(url string) *SOAPAdapter {
	return NewSOAPAdapter(SOAPOptions{Vendor: "cascade", Endpoint: url, Retry: fastRetry})
}

func TestSOAPFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "urn:catalog/GetCatalog", r.Header.Get("SOAPAction"))

		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<Username>dealer</Username>")
		assert.Contains(t, string(body), "<GetCatalog xmlns=\"urn:catalog\">")
		assert.NotContains(t, string(body), "ModifiedSince")

		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, catalogResponse)
	}))
	defer server.Close()

	records, err := newTestSOAP(server.URL).Fetch(context.Background(), FetchRequest{
		Credentials: Credentials{Username: "dealer", Password: "pw"},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "000111222333", records[0]["UPC"])
	assert.Equal(t, "OPTIX ARMS", records[0]["Manufacturer"])
	assert.Equal(t, "A1|A2", records[0]["MfgPartNo"])
	assert.Equal(t, "http://img/large.jpg", records[0]["Images.LargeImage"])
	assert.Equal(t, "Freight", records[1]["ItemType"])
}

func TestSOAPFetch_Faults(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		message string
		want    error
		calls   int32
	}{
		{"authentication fault", "soap:Client.Authentication", "Invalid login", ErrAuth, 1},
		{"server fault is retried", "soap:Server", "Database timeout", ErrTransient, 3},
		{"client fault", "soap:Client", "Unknown operation", ErrMalformedFeed, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprintf(w, faultTemplate, tt.code, tt.message)
			}))
			defer server.Close()

			_, err := newTestSOAP(server.URL).Fetch(context.Background(), FetchRequest{})
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), tt.message)
			assert.Equal(t, tt.calls, atomic.LoadInt32(&calls))
		})
	}
}

func TestSOAPFetch_NonXMLUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "<html>denied")
	}))
	defer server.Close()

	_, err := newTestSOAP(server.URL).Fetch(context.Background(), FetchRequest{})
	assert.ErrorIs(t, err, ErrAuth)
}

func TestParseSOAPResponse_MissingBody(t *testing.T) {
	_, err := parseSOAPResponse([]byte(`<root><Item><UPC>1</UPC></Item></root>`))
	assert.ErrorIs(t, err, ErrMalformedFeed)

	_, err = parseSOAPResponse([]byte(strings.Repeat("<", 3)))
	assert.ErrorIs(t, err, ErrMalformedFeed)
}

func TestSOAPTestConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<MaxRecords>1</MaxRecords>")
		fmt.Fprint(w, catalogResponse)
	}))
	defer server.Close()

	assert.NoError(t, newTestSOAP(server.URL).TestConnection(context.Background(), Credentials{Username: "u"}))
}
