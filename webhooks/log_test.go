package webhooks_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/jrsteele09/go-dropship-gateway/webhooks"
	"github.com/stretchr/testify/require"
)

func TestLogRecordAndRecent(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	l := webhooks.NewLog(webhooks.WithNowFunc(func() time.Time { return now }))

	ev := l.Record(webhooks.SourceShopify, []byte(`{"id":42}`))
	require.NotEmpty(t, ev.ID)
	require.Equal(t, webhooks.SourceShopify, ev.Source)
	require.JSONEq(t, `{"id":42}`, string(ev.Payload))
	require.Equal(t, now.UnixMilli(), ev.ReceivedAt)

	dup := l.Record(webhooks.SourceShopify, []byte(`{"id":42}`))
	require.NotEqual(t, ev.ID, dup.ID, "redeliveries are stored as new events")
	require.Equal(t, 2, l.Len())
}

func TestLogIsBounded(t *testing.T) {
	l := webhooks.NewLog(webhooks.WithCapacity(5))
	for i := range 8 {
		l.Record(webhooks.SourceWooCommerce, []byte(fmt.Sprintf(`{"id":%d}`, i)))
	}
	require.Equal(t, 5, l.Len())

	recent := l.Recent(3)
	require.Len(t, recent, 3)
	require.JSONEq(t, `{"id":5}`, string(recent[0].Payload))
	require.JSONEq(t, `{"id":7}`, string(recent[2].Payload))
	require.Len(t, l.Recent(50), 5)
}

func TestLogKeepsNonJSONPayload(t *testing.T) {
	l := webhooks.NewLog()
	ev := l.Record(webhooks.SourceWooCommerce, []byte("webhook_id=12"))
	require.JSONEq(t, `"webhook_id=12"`, string(ev.Payload))
}

func TestVerifyShopify(t *testing.T) {
	body := []byte(`{"id":1}`)
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(body)
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	require.True(t, webhooks.VerifyShopify("s3cret", body, sig))
	require.False(t, webhooks.VerifyShopify("other", body, sig))
	require.False(t, webhooks.VerifyShopify("s3cret", []byte(`{"id":2}`), sig))
	require.False(t, webhooks.VerifyShopify("s3cret", body, ""))
}
