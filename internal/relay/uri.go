package relay

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	uriVersion           = 2
	defaultRelayProtocol = "irn"
)

// URI is a pairing URI: wc:<topic>@2?relay-protocol=irn&symKey=<hex>.
type URI struct {
	Topic           string
	Version         int
	RelayProtocol   string
	SymKey          []byte
	ExpiryTimestamp int64
}

func (u URI) String() string {
	q := url.Values{}
	q.Set("relay-protocol", u.RelayProtocol)
	q.Set("symKey", hex.EncodeToString(u.SymKey))
	if u.ExpiryTimestamp > 0 {
		q.Set("expiryTimestamp", strconv.FormatInt(u.ExpiryTimestamp, 10))
	}
	return fmt.Sprintf("wc:%s@%d?%s", u.Topic, u.Version, q.Encode())
}

func ParseURI(s string) (URI, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "wc:")
	if !ok {
		return URI{}, errors.Newf("pairing uri: missing wc: scheme in %q", s)
	}
	path, rawQuery, _ := strings.Cut(rest, "?")
	topic, ver, ok := strings.Cut(path, "@")
	if !ok || topic == "" {
		return URI{}, errors.New("pairing uri: missing topic or version")
	}
	v, err := strconv.Atoi(ver)
	if err != nil || v != uriVersion {
		return URI{}, errors.Newf("pairing uri: unsupported version %q", ver)
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return URI{}, errors.Wrap(err, "pairing uri: query")
	}
	key, err := hex.DecodeString(q.Get("symKey"))
	if err != nil || len(key) != symKeySize {
		return URI{}, errors.New("pairing uri: invalid symKey")
	}
	out := URI{
		Topic:         topic,
		Version:       v,
		RelayProtocol: q.Get("relay-protocol"),
		SymKey:        key,
	}
	if out.RelayProtocol == "" {
		out.RelayProtocol = defaultRelayProtocol
	}
	if exp := q.Get("expiryTimestamp"); exp != "" {
		if out.ExpiryTimestamp, err = strconv.ParseInt(exp, 10, 64); err != nil {
			return URI{}, errors.Wrap(err, "pairing uri: expiryTimestamp")
		}
	}
	return out, nil
}
