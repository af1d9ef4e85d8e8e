package throttle

import (
	"testing"

	"github.com/vnykmshr/detthrottle/internal/testutil"
	"github.com/vnykmshr/detthrottle/pkg/throttle/functionality"
)

type countingCounter struct {
	calls int
}

func (c *countingCounter) CountAutoCreations(txn *TxnInfo) uint64 {
	c.calls++
	if txn.Transfer == nil {
		return 0
	}
	return uint64(len(txn.Transfer.Recipients))
}

func transferTo(recipients ...string) *TxnInfo {
	return &TxnInfo{Kind: functionality.CryptoTransfer, Transfer: &TransferOp{Recipients: recipients}}
}

func TestAutoCreations(t *testing.T) {
	counter := &countingCounter{}
	th := newThrottling(t, HAPI, defaultProps(), defsOf(
		bucket("Transfers", 100, functionality.CryptoTransfer),
		bucket("Creations", 3, functionality.CryptoCreate),
	), WithAutoCreationCounter(counter))
	creations := throttleNamed(t, th, "Creations")

	txn := transferTo("alias-a", "alias-b")
	assertTxnAdmitted(t, th, txn, t0)
	testutil.AssertEqual(t, creations.Used(), ops(2))

	n, known := txn.AutoCreations()
	testutil.AssertEqual(t, known, true)
	testutil.AssertEqual(t, n, uint64(2))

	// The cached count is reused, so the second evaluation is rejected
	// without consulting the counter again.
	assertTxnThrottled(t, th, txn, t0)
	testutil.AssertEqual(t, counter.calls, 1)
	testutil.AssertEqual(t, throttleNamed(t, th, "Transfers").Used(), ops(1))

	assertTxnAdmitted(t, th, transferTo("alias-c"), t0)
	assertTxnAdmitted(t, th, transferTo(), t0)
	testutil.AssertEqual(t, creations.Used(), ops(3))
}

func TestAutoCreations_Disabled(t *testing.T) {
	props := defaultProps()
	props.AutoCreation = false
	th := newThrottling(t, HAPI, props, defsOf(
		bucket("Transfers", 100, functionality.CryptoTransfer),
		bucket("Creations", 1, functionality.CryptoCreate),
	), WithAutoCreationCounter(&countingCounter{}))

	txn := transferTo("alias-a", "alias-b")
	assertTxnAdmitted(t, th, txn, t0)
	testutil.AssertEqual(t, throttleNamed(t, th, "Creations").Used(), uint64(0))
	_, known := txn.AutoCreations()
	testutil.AssertEqual(t, known, true)
}

func TestAutoCreations_WithoutCreationThrottle(t *testing.T) {
	th := newThrottling(t, HAPI, defaultProps(), defsOf(bucket("Transfers", 100, functionality.CryptoTransfer)),
		WithAutoCreationCounter(AutoCreationCountFunc(func(*TxnInfo) uint64 { return 1 })))

	assertTxnThrottled(t, th, transferTo("alias-a"), t0)
	testutil.AssertEqual(t, throttleNamed(t, th, "Transfers").Used(), uint64(0))

	precounted := transferTo("alias-a")
	precounted.SetAutoCreations(0)
	assertTxnAdmitted(t, th, precounted, t0)
}

func TestTokenMintScaleFactor(t *testing.T) {
	props := defaultProps()
	props.MintScaleFactor = ScaleFactor{Numerator: 5, Denominator: 2}
	th := newThrottling(t, HAPI, props, defsOf(bucket("Mints", 10, functionality.TokenMint)))
	mints := throttleNamed(t, th, "Mints")

	assertTxnAdmitted(t, th, &TxnInfo{Kind: functionality.TokenMint, Mint: &MintOp{NumSerials: 3}}, t0)
	testutil.AssertEqual(t, mints.Used(), ops(8))

	assertTxnThrottled(t, th, &TxnInfo{Kind: functionality.TokenMint, Mint: &MintOp{NumSerials: 1}}, t0)
	assertTxnAdmitted(t, th, &TxnInfo{Kind: functionality.TokenMint, Mint: &MintOp{}}, t0)
	assertTxnAdmitted(t, th, &TxnInfo{Kind: functionality.TokenMint}, t0)
	testutil.AssertEqual(t, mints.Used(), ops(10))
}

func TestScaleFactor(t *testing.T) {
	tests := []struct {
		in      string
		want    ScaleFactor
		wantErr bool
	}{
		{in: "1:1", want: OneToOne},
		{in: " 5:2 ", want: ScaleFactor{Numerator: 5, Denominator: 2}},
		{in: "5", wantErr: true},
		{in: "0:1", wantErr: true},
		{in: "1:0", wantErr: true},
		{in: "a:b", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseScaleFactor(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseScaleFactor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		testutil.AssertEqual(t, got, tt.want)
	}

	f := ScaleFactor{Numerator: 5, Denominator: 2}
	testutil.AssertEqual(t, f.ScaledUp(3), uint64(8))
	testutil.AssertEqual(t, f.ScaledUp(4), uint64(10))
	testutil.AssertEqual(t, f.ScaledUp(^uint64(0)), ^uint64(0))
	testutil.AssertEqual(t, ScaleFactor{}.ScaledUp(7), uint64(7))
	testutil.AssertEqual(t, f.String(), "5:2")
}

func TestParseMode(t *testing.T) {
	for _, mode := range []Mode{HAPI, Consensus, Schedule} {
		got, err := ParseMode(mode.String())
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, got, mode)
	}
	got, err := ParseMode("consensus")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got, Consensus)

	_, err = ParseMode("frontend")
	testutil.AssertError(t, err)

	testutil.AssertEqual(t, HAPI.GasLimitKey(), FrontendGasLimitKey)
	testutil.AssertEqual(t, Consensus.GasLimitKey(), ConsensusGasLimitKey)
	testutil.AssertEqual(t, Schedule.GasLimitKey(), ScheduleGasLimitKey)
	testutil.AssertEqual(t, Mode(9).String(), "Mode(9)")
}
