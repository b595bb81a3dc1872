package verification

import (
	"context"
	"testing"
	"time"

	"github.com/certen/ksiverify/pkg/hashing"
	"github.com/certen/ksiverify/pkg/merkle"
	"github.com/certen/ksiverify/pkg/pubfile"
	"github.com/certen/ksiverify/pkg/signature"
)

func im(t *testing.T, reg *hashing.Registry, data string) hashing.Imprint {
	t.Helper()
	v, err := hashing.HashImprint(reg, hashing.SHA256, []byte(data))
	if err != nil {
		t.Fatalf("HashImprint: %v", err)
	}
	return v
}

// twoChainSignature builds a minimal Signature with two consistent
// aggregation chains and a calendar chain anchored on their output.
func twoChainSignature(t *testing.T, reg *hashing.Registry) *signature.Signature {
	t.Helper()
	leaf := im(t, reg, "leaf")
	sib0 := im(t, reg, "sib0")
	sib1 := im(t, reg, "sib1")

	chain0 := signature.AggregationChain{
		AggregationTime: 1000,
		ChainIndex:      []uint64{1, 2},
		InputHash:       leaf,
		AggrAlgo:        hashing.SHA256,
		Links:           []merkle.HashChainLink{{Direction: merkle.Right, Sibling: sib0}},
	}
	out0, _, err := merkle.Aggregate(reg, chain0.AggrAlgo, chain0.InputHash, 0, chain0.Links)
	if err != nil {
		t.Fatalf("Aggregate chain0: %v", err)
	}
	chain1 := signature.AggregationChain{
		AggregationTime: 1000,
		ChainIndex:      []uint64{1},
		InputHash:       out0,
		AggrAlgo:        hashing.SHA256,
		Links:           []merkle.HashChainLink{{Direction: merkle.Left, Sibling: sib1}},
	}
	out1, _, err := merkle.Aggregate(reg, chain1.AggrAlgo, chain1.InputHash, 0, chain1.Links)
	if err != nil {
		t.Fatalf("Aggregate chain1: %v", err)
	}

	cal := &signature.CalendarChain{
		AggregationTime: 1000,
		PublicationTime: 1000 + 1,
		InputHash:       out1,
		Links: []merkle.HashChainLink{
			{Direction: merkle.Right, Sibling: im(t, reg, "cal-right")},
			{Direction: merkle.Left, Sibling: im(t, reg, "cal-left")},
		},
	}

	return &signature.Signature{
		Chains:   []signature.AggregationChain{chain0, chain1},
		Calendar: cal,
	}
}

func TestRuleGEN01(t *testing.T) {
	reg := hashing.DefaultRegistry()
	sig := twoChainSignature(t, reg)
	vc := &VerificationContext{Registry: reg, Signature: sig}

	if r := RuleGEN01(context.Background(), vc); r.Status != OK {
		t.Fatalf("GEN-01 = %+v, want OK", r)
	}

	sig.Chains[1].InputHash = im(t, reg, "wrong")
	if r := RuleGEN01(context.Background(), vc); r.Status != Fail {
		t.Fatalf("GEN-01 = %+v, want FAIL after corrupting chain 1 input hash", r)
	}
}

func TestRuleGEN02(t *testing.T) {
	reg := hashing.DefaultRegistry()
	sig := twoChainSignature(t, reg)
	vc := &VerificationContext{Registry: reg, Signature: sig}

	if r := RuleGEN02(context.Background(), vc); r.Status != OK {
		t.Fatalf("GEN-02 = %+v, want OK", r)
	}

	sig.Chains[1].AggregationTime = 2000
	if r := RuleGEN02(context.Background(), vc); r.Status != Fail {
		t.Fatalf("GEN-02 = %+v, want FAIL after divergent aggregation time", r)
	}
}

func TestRuleGEN03(t *testing.T) {
	reg := hashing.DefaultRegistry()
	sig := twoChainSignature(t, reg)
	vc := &VerificationContext{Registry: reg, Signature: sig}

	if r := RuleGEN03(context.Background(), vc); r.Status != OK {
		t.Fatalf("GEN-03 = %+v, want OK", r)
	}

	sig.Chains[1].ChainIndex = []uint64{9}
	if r := RuleGEN03(context.Background(), vc); r.Status != Fail {
		t.Fatalf("GEN-03 = %+v, want FAIL when parent index is not a prefix of child index", r)
	}
}

func TestRuleGEN04AndGEN05(t *testing.T) {
	reg := hashing.DefaultRegistry()
	sig := twoChainSignature(t, reg)
	vc := &VerificationContext{Registry: reg, Signature: sig}

	if r := RuleGEN04(context.Background(), vc); r.Status != OK {
		t.Fatalf("GEN-04 = %+v, want OK", r)
	}
	if r := RuleGEN05(context.Background(), vc); r.Status != OK {
		t.Fatalf("GEN-05 = %+v, want OK", r)
	}

	sig.Calendar.AggregationTime = 999
	if r := RuleGEN04(context.Background(), vc); r.Status != Fail {
		t.Fatalf("GEN-04 = %+v, want FAIL after divergent calendar aggregation time", r)
	}

	sig2 := twoChainSignature(t, reg)
	sig2.Calendar.Links[0].Direction = merkle.Left
	vc2 := &VerificationContext{Registry: reg, Signature: sig2}
	if r := RuleGEN05(context.Background(), vc2); r.Status != Fail {
		t.Fatalf("GEN-05 = %+v, want FAIL after flipping a calendar link direction", r)
	}
}

func TestRuleGEN04NAWithoutCalendar(t *testing.T) {
	reg := hashing.DefaultRegistry()
	sig := twoChainSignature(t, reg)
	sig.Calendar = nil
	vc := &VerificationContext{Registry: reg, Signature: sig}
	if r := RuleGEN04(context.Background(), vc); r.Status != NA {
		t.Fatalf("GEN-04 = %+v, want NA without a calendar chain", r)
	}
	if r := RuleGEN05(context.Background(), vc); r.Status != NA {
		t.Fatalf("GEN-05 = %+v, want NA without a calendar chain", r)
	}
}

func TestRuleDOC01(t *testing.T) {
	reg := hashing.DefaultRegistry()
	sig := twoChainSignature(t, reg)
	vc := &VerificationContext{Registry: reg, Signature: sig}

	if r := RuleDOC01(context.Background(), vc); r.Status != NA {
		t.Fatalf("DOC-01 = %+v, want NA without a document hash", r)
	}

	vc.DocumentHash = sig.Chains[0].InputHash
	if r := RuleDOC01(context.Background(), vc); r.Status != OK {
		t.Fatalf("DOC-01 = %+v, want OK for the matching document hash", r)
	}

	vc.DocumentHash = im(t, reg, "not-the-document")
	if r := RuleDOC01(context.Background(), vc); r.Status != Fail {
		t.Fatalf("DOC-01 = %+v, want FAIL for a mismatched document hash", r)
	}
}

func TestRuleINT10DeprecatedAlgorithm(t *testing.T) {
	reg := hashing.DefaultRegistry()
	sig := twoChainSignature(t, reg)
	vc := &VerificationContext{Registry: reg, Signature: sig}

	if r := RuleINT10(context.Background(), vc); r.Status != OK {
		t.Fatalf("INT-10 = %+v, want OK", r)
	}

	reg.DeprecateAfter(hashing.SHA256, time.Unix(500, 0))
	if r := RuleINT10(context.Background(), vc); r.Status != Fail || r.ErrorCode != "ALGORITHM_DEPRECATED" {
		t.Fatalf("INT-10 = %+v, want FAIL/ALGORITHM_DEPRECATED once SHA-256 is deprecated before the aggregation time", r)
	}
}

// fakePKI verifies a signature by checking sigValue == reverse(data),
// avoiding real X.509 key material in these rule-level tests.
type fakePKI struct {
	trusted       map[string][]byte
	validityStart time.Time
	validityEnd   time.Time
}

func (f *fakePKI) Verify(certDER []byte, sigAlgo string, sigValue, data []byte) error {
	want := make([]byte, len(data))
	for i, b := range data {
		want[len(data)-1-i] = b
	}
	for i := range want {
		if sigValue[i] != want[i] {
			return errMismatch
		}
	}
	return nil
}

func (f *fakePKI) TrustedCertificate(certID string) ([]byte, bool) {
	der, ok := f.trusted[certID]
	return der, ok
}

func (f *fakePKI) CertValidityCovers(certDER []byte, t time.Time) (bool, error) {
	return !t.Before(f.validityStart) && !t.After(f.validityEnd), nil
}

var errMismatch = &mismatchError{}

type mismatchError struct{}

func (*mismatchError) Error() string { return "signature mismatch" }

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}

func TestRuleKEY01KEY02KEY03(t *testing.T) {
	reg := hashing.DefaultRegistry()
	sig := twoChainSignature(t, reg)

	rawData := []byte("published-data-block")
	sig.CalAuth = &signature.CalendarAuthenticationRecord{
		PublishedData: signature.PublishedData{
			Time:        sig.Calendar.PublicationTime,
			Hash:        mustCalendarRoot(t, reg, sig.Calendar),
			RawEncoding: rawData,
		},
		Signature: signature.SignatureData{
			SigAlgo:  "test",
			SigValue: reverse(rawData),
			CertID:   "cert-1",
		},
	}

	header := pubfile.Header{Version: 1}
	pubs := []pubfile.PublicationEntry{{Time: sig.Calendar.PublicationTime, Hash: mustCalendarRoot(t, reg, sig.Calendar)}}
	wire := pubfile.Build(header, pubs, map[string][]byte{"cert-1": []byte("fake-der")},
		pubfile.SignatureBlock{SigAlgo: "x", SigValue: []byte{0}, CertID: "c"})
	pf, err := pubfile.Parse(reg, wire)
	if err != nil {
		t.Fatalf("Parse publications file: %v", err)
	}

	pki := &fakePKI{validityStart: time.Unix(0, 0), validityEnd: time.Unix(1_000_000, 0)}
	vc := &VerificationContext{Registry: reg, Signature: sig, PublicationsFile: pf, PKI: pki}

	if r := RuleKEY01(context.Background(), vc); r.Status != OK {
		t.Fatalf("KEY-01 = %+v, want OK", r)
	}
	if r := RuleKEY02(context.Background(), vc); r.Status != OK {
		t.Fatalf("KEY-02 = %+v, want OK", r)
	}
	if r := RuleKEY03(context.Background(), vc); r.Status != OK {
		t.Fatalf("KEY-03 = %+v, want OK", r)
	}

	pki.validityEnd = time.Unix(500, 0)
	if r := RuleKEY03(context.Background(), vc); r.Status != Fail {
		t.Fatalf("KEY-03 = %+v, want FAIL once the certificate's validity no longer covers the aggregation time", r)
	}
}

func mustCalendarRoot(t *testing.T, reg *hashing.Registry, cal *signature.CalendarChain) hashing.Imprint {
	t.Helper()
	root, err := merkle.AggregateCalendar(reg, cal.InputHash, cal.Links)
	if err != nil {
		t.Fatalf("AggregateCalendar: %v", err)
	}
	return root
}

type fakeExtender struct {
	chain *signature.CalendarChain
	err   error
	calls int
}

func (f *fakeExtender) Extend(ctx context.Context, aggregationTime uint64, publicationTime *uint64) (*signature.CalendarChain, error) {
	f.calls++
	return f.chain, f.err
}

func TestRulePUB01PUB02PUB03(t *testing.T) {
	reg := hashing.DefaultRegistry()
	sig := twoChainSignature(t, reg)
	embeddedRoot := mustCalendarRoot(t, reg, sig.Calendar)

	// PUB-01: signature carries its own publication record.
	sig.Publication = &signature.PublicationRecord{
		PublishedData: signature.PublishedData{Time: sig.Calendar.PublicationTime, Hash: embeddedRoot},
	}
	pubs := []pubfile.PublicationEntry{{Time: sig.Calendar.PublicationTime, Hash: embeddedRoot}}
	wire := pubfile.Build(pubfile.Header{Version: 1}, pubs, nil,
		pubfile.SignatureBlock{SigAlgo: "x", SigValue: []byte{0}, CertID: "c"})
	pf, err := pubfile.Parse(reg, wire)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	vc := &VerificationContext{Registry: reg, Signature: sig, PublicationsFile: pf}

	if r := RulePUB01(context.Background(), vc); r.Status != OK {
		t.Fatalf("PUB-01 = %+v, want OK", r)
	}
	if r := RulePUB02(context.Background(), vc); r.Status != NA {
		t.Fatalf("PUB-02 = %+v, want NA when the signature already carries a publication record", r)
	}

	// PUB-02/PUB-03: signature has no embedded publication, must extend.
	sig.Publication = nil
	vc.AllowExtending = true
	vc.Extender = &fakeExtender{chain: sig.Calendar}

	if r := RulePUB02(context.Background(), vc); r.Status != OK {
		t.Fatalf("PUB-02 = %+v, want OK", r)
	}
	if r := RulePUB03(context.Background(), vc); r.Status != OK {
		t.Fatalf("PUB-03 = %+v, want OK", r)
	}

	vc.AllowExtending = false
	if r := RulePUB02(context.Background(), vc); r.Status != Fail {
		t.Fatalf("PUB-02 = %+v, want FAIL when extending is required but not permitted", r)
	}
}

func TestRuleUSER01(t *testing.T) {
	reg := hashing.DefaultRegistry()
	sig := twoChainSignature(t, reg)
	root := mustCalendarRoot(t, reg, sig.Calendar)

	sig.Publication = &signature.PublicationRecord{
		PublishedData: signature.PublishedData{Time: sig.Calendar.PublicationTime, Hash: root},
	}
	vc := &VerificationContext{Registry: reg, Signature: sig}

	vc.UserPublication = &signature.PublishedData{Time: sig.Calendar.PublicationTime, Hash: root}
	if r := RuleUSER01(context.Background(), vc); r.Status != OK {
		t.Fatalf("USER-01 = %+v, want OK for a matching embedded publication", r)
	}

	vc.UserPublication = &signature.PublishedData{Time: sig.Calendar.PublicationTime, Hash: im(t, reg, "wrong")}
	if r := RuleUSER01(context.Background(), vc); r.Status != Fail {
		t.Fatalf("USER-01 = %+v, want FAIL for a mismatched publication hash at the same time", r)
	}

	// Different time: falls through to the extension path.
	laterTime := sig.Calendar.PublicationTime + 500
	vc.UserPublication = &signature.PublishedData{Time: laterTime, Hash: root}
	vc.AllowExtending = true
	vc.Extender = &fakeExtender{chain: sig.Calendar}
	if r := RuleUSER01(context.Background(), vc); r.Status != OK {
		t.Fatalf("USER-01 = %+v, want OK once the extended chain hashes to the user publication", r)
	}
}

func TestRuleCAL01(t *testing.T) {
	reg := hashing.DefaultRegistry()
	sig := twoChainSignature(t, reg)
	vc := &VerificationContext{Registry: reg, Signature: sig, Extender: &fakeExtender{chain: sig.Calendar}}

	if r := RuleCAL01(context.Background(), vc); r.Status != OK {
		t.Fatalf("CAL-01 = %+v, want OK when the extender returns the same chain", r)
	}

	substituted := &signature.CalendarChain{
		AggregationTime: sig.Calendar.AggregationTime,
		PublicationTime: sig.Calendar.PublicationTime,
		InputHash:       sig.Calendar.InputHash,
		Links: []merkle.HashChainLink{
			{Direction: merkle.Right, Sibling: im(t, reg, "different-right-sibling")},
			{Direction: merkle.Left, Sibling: im(t, reg, "cal-left")},
		},
	}
	vc.Extender = &fakeExtender{chain: substituted}
	vc.extendedToHead = nil
	if r := RuleCAL01(context.Background(), vc); r.Status != Fail {
		t.Fatalf("CAL-01 = %+v, want FAIL when the extender substitutes a different right-link", r)
	}
}

func TestRuleINT12(t *testing.T) {
	reg := hashing.DefaultRegistry()
	sig := twoChainSignature(t, reg)
	sig.Calendar = nil
	vc := &VerificationContext{Registry: reg, Signature: sig}

	if r := RuleINT12(context.Background(), vc); r.Status != NA {
		t.Fatalf("INT-12 = %+v, want NA without an aggregation authentication record", r)
	}

	sig.AggrAuth = &signature.AggregationAuthenticationRecord{
		PublishedData: signature.PublishedData{Time: 1000, Hash: im(t, reg, "agg-auth")},
	}
	if r := RuleINT12(context.Background(), vc); r.Status != Inconclusive {
		t.Fatalf("INT-12 = %+v, want INCONCLUSIVE when it is the only candidate trust anchor", r)
	}

	sig.Calendar = twoChainSignature(t, reg).Calendar
	if r := RuleINT12(context.Background(), vc); r.Status != NA {
		t.Fatalf("INT-12 = %+v, want NA once a calendar chain is also present", r)
	}
}

func TestExtendedCalendarChainIsCachedPerTuple(t *testing.T) {
	reg := hashing.DefaultRegistry()
	sig := twoChainSignature(t, reg)
	fe := &fakeExtender{chain: sig.Calendar}
	vc := &VerificationContext{Registry: reg, Signature: sig, Extender: fe}

	pubTime := sig.Calendar.PublicationTime
	if _, err := vc.ExtendedCalendarChain(context.Background(), &pubTime); err != nil {
		t.Fatalf("ExtendedCalendarChain: %v", err)
	}
	if _, err := vc.ExtendedCalendarChain(context.Background(), &pubTime); err != nil {
		t.Fatalf("ExtendedCalendarChain: %v", err)
	}
	if fe.calls != 1 {
		t.Fatalf("extender called %d times, want 1 (second call should hit the context cache)", fe.calls)
	}
}
