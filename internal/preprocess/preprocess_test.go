package preprocess

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
)

func TestFingerprint_Deterministic(t *testing.T) {
	sig := domain.Signal{
		ID:      "sig-1",
		Source:  domain.SourceEmail,
		Subject: "URGENT: Production database is down",
		Body:    "The primary replica stopped responding at 03:12.",
		Sender:  "Alerts@X.com",
	}

	fp1 := Fingerprint(sig)
	fp2 := Fingerprint(sig)
	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 64)

	// ID and timestamp do not participate in the fingerprint.
	sig2 := sig
	sig2.ID = "sig-2"
	sig2.Timestamp = time.Now()
	assert.Equal(t, fp1, Fingerprint(sig2))

	// Sender case does not matter.
	sig3 := sig
	sig3.Sender = "alerts@x.com"
	assert.Equal(t, fp1, Fingerprint(sig3))

	// A different subject does.
	sig4 := sig
	sig4.Subject = "Weekly report"
	assert.NotEqual(t, fp1, Fingerprint(sig4))
}

func TestFingerprint_BodyPrefixOnly(t *testing.T) {
	long := strings.Repeat("incident detail ", 100)
	sig := domain.Signal{Source: domain.SourceChat, Subject: "s", Body: long, Sender: "a@b.co"}
	sig2 := sig
	sig2.Body = long + "trailing boilerplate that differs"

	assert.Equal(t, Fingerprint(sig), Fingerprint(sig2))
}

func TestRun_KeywordsStripStopwords(t *testing.T) {
	res := Run(domain.Signal{
		Source:  domain.SourceEmail,
		Subject: "The database is down",
		Body:    "We have an urgent incident with the billing database",
		Sender:  "ops@example.com",
	})

	assert.Contains(t, res.Keywords, "database")
	assert.Contains(t, res.Keywords, "urgent")
	assert.Contains(t, res.Keywords, "incident")
	assert.NotContains(t, res.Keywords, "the")
	assert.NotContains(t, res.Keywords, "is")
	assert.NotContains(t, res.Keywords, "we")

	// First-seen order, no duplicates.
	assert.Equal(t, "database", res.Keywords[0])
	count := 0
	for _, k := range res.Keywords {
		if k == "database" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRun_EntityExtraction(t *testing.T) {
	res := Run(domain.Signal{
		Source:  domain.SourceEmail,
		Subject: "Invoice due 2024-03-07",
		Body:    "Contact Billing@Vendor.com or support@vendor.com. Due on March 15th, 2024 or 03/20/2024.",
		Sender:  "ap@corp.example",
	})

	assert.Equal(t, []string{"billing@vendor.com", "support@vendor.com"}, res.Entities.Emails)

	require.Len(t, res.Entities.Dates, 3)
	assert.Equal(t, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), res.Entities.Dates[0])
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), res.Entities.Dates[1])
	assert.Equal(t, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), res.Entities.Dates[2])
}

func TestExtractDates_RejectsImpossible(t *testing.T) {
	dates := extractDates("meet on 2024-02-30 or 13/40/2024")
	assert.Empty(t, dates)
}

func TestRun_PureAndDeterministic(t *testing.T) {
	sig := domain.Signal{
		Source:  domain.SourceSheet,
		Subject: "Budget Q3 updated",
		Body:    "Row 14 changed by finance@corp.example on 2024-07-01",
		Sender:  "sheets@corp.example",
	}
	a := Run(sig)
	b := Run(sig)
	assert.Equal(t, a, b)
}

func TestRun_EmptyBody(t *testing.T) {
	res := Run(domain.Signal{Source: domain.SourceEmail, Subject: "", Body: "", Sender: ""})
	assert.NotEmpty(t, res.Fingerprint)
	assert.Empty(t, res.Keywords)
	assert.Empty(t, res.Entities.Emails)
}
