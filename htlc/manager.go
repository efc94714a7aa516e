// Package htlc implements the HTLCManager: the four-queue log of HTLC
// adds, settles, and fails that a Channel replays to decide which HTLCs
// belong in any given commitment. It is grounded on lnd's
// lnwallet/channel.go PaymentDescriptor/updateLog machinery — the
// addCommitHeightLocal/addCommitHeightRemote and
// removeCommitHeightLocal/removeCommitHeightRemote fields there are the
// same dual-height tracking this package calls added_at/resolved_at per
// side, generalized into the explicit per-direction queues spec.md names.
package htlc

// Side identifies one of the two parties to a channel.
type Side uint8

const (
	Local Side = iota
	Remote
)

func (s Side) String() string {
	if s == Local {
		return "local"
	}
	return "remote"
}

// Direction identifies which party originated a payment, independent of
// which side of the channel we are.
type Direction uint8

const (
	Sent Direction = iota
	Received
)

// Add is a pending HTLC offer.
type Add struct {
	PaymentHash [32]byte
	AmountMsat  uint64
	CltvExpiry  uint32
	ID          uint64
	Timestamp   int64
}

// settle records a resolution by revealing the preimage.
type settle struct {
	id         uint64
	preimage   [32]byte
	resolvedAt uint64
}

// fail records a resolution by failure.
type fail struct {
	id         uint64
	reason     []byte
	resolvedAt uint64
}

// log is the per-side queue: the adds this side has offered, plus the
// settles/fails that have resolved them, plus the ctn counter advanced by
// RevokeCurrentCommitment (for Local) / ReceiveRevocation (for Remote).
type log struct {
	adds     map[uint64]Add
	addedAt  map[uint64]uint64
	settles  []settle
	fails    []fail
	resolved map[uint64]uint64 // htlc id -> resolvedAt ctn
	ctn      uint64
}

func newLog() *log {
	return &log{
		adds:     make(map[uint64]Add),
		addedAt:  make(map[uint64]uint64),
		resolved: make(map[uint64]uint64),
	}
}

// Manager is the HTLCManager: two logs (one per side), each carrying the
// HTLCs that side originated.
type Manager struct {
	logs [2]*log
}

// New returns an empty HTLCManager.
func New() *Manager {
	return &Manager{logs: [2]*log{newLog(), newLog()}}
}

// Ctn returns side's current commitment number.
func (m *Manager) Ctn(side Side) uint64 {
	return m.logs[side].ctn
}

// AdvanceCtn bumps side's ctn by one, called when that side's commitment
// is revoked.
func (m *Manager) AdvanceCtn(side Side) {
	m.logs[side].ctn++
}

// Add appends htlc to the log of the side that originated it (offered_by).
// The htlc's ID must already be assigned by the caller (Channel owns
// htlc_id allocation).
func (m *Manager) Add(offeredBy Side, htlc Add) {
	l := m.logs[offeredBy]
	l.adds[htlc.ID] = htlc
	l.addedAt[htlc.ID] = l.ctn + 1
}

// Settle records that htlcID (offered by offeredBy) was settled with
// preimage, visible starting at the next ctn of the log that tracks it.
func (m *Manager) Settle(offeredBy Side, htlcID uint64, preimage [32]byte) {
	l := m.logs[offeredBy]
	resolvedAt := l.ctn + 1
	l.settles = append(l.settles, settle{id: htlcID, preimage: preimage, resolvedAt: resolvedAt})
	l.resolved[htlcID] = resolvedAt
}

// Fail records that htlcID (offered by offeredBy) failed, with the given
// opaque reason blob.
func (m *Manager) Fail(offeredBy Side, htlcID uint64, reason []byte) {
	l := m.logs[offeredBy]
	resolvedAt := l.ctn + 1
	l.fails = append(l.fails, fail{id: htlcID, reason: reason, resolvedAt: resolvedAt})
	l.resolved[htlcID] = resolvedAt
}

// Lookup returns the Add for htlcID as originally offered by offeredBy.
func (m *Manager) Lookup(offeredBy Side, htlcID uint64) (Add, bool) {
	a, ok := m.logs[offeredBy].adds[htlcID]
	return a, ok
}

// IsResolved reports whether htlcID has a recorded settle/fail at all
// (regardless of whether that resolution has locked in on any particular
// commitment yet).
func (m *Manager) IsResolved(offeredBy Side, htlcID uint64) bool {
	_, ok := m.logs[offeredBy].resolved[htlcID]
	return ok
}

// SettlePreimage returns the preimage recorded for htlcID, if it was
// settled (rather than failed).
func (m *Manager) SettlePreimage(offeredBy Side, htlcID uint64) ([32]byte, bool) {
	for _, s := range m.logs[offeredBy].settles {
		if s.id == htlcID {
			return s.preimage, true
		}
	}
	return [32]byte{}, false
}

// view reports which offeredBy-originated HTLCs are visible in who's
// commitment at ctn: added at or before ctn, and not yet resolved at or
// before ctn.
//
// The one-ctn lag rule (an add sent by us appears in our own commitment
// one ctn later than in theirs) is expressed entirely through the
// addedAt/resolvedAt bookkeeping already being per-log (offeredBy's own
// ctn, which is who's ctn when offeredBy == who, and the mirrored
// counterpart otherwise) — callers pass the ctn of the commitment they
// are building, which is tracked per-side by the Channel, not by this
// package.
func (m *Manager) view(offeredBy Side, ctn uint64) []Add {
	l := m.logs[offeredBy]
	var out []Add
	for id, addedAt := range l.addedAt {
		if addedAt > ctn {
			continue
		}
		if resolvedAt, ok := l.resolved[id]; ok && resolvedAt <= ctn {
			continue
		}
		out = append(out, l.adds[id])
	}
	return out
}

// HTLCsByDirection returns the set of HTLCs appearing in who's commitment
// at ctn that flow in the given direction relative to who: Sent means
// who is paying them out (who originated them), Received means the other
// side originated them and who is receiving.
func (m *Manager) HTLCsByDirection(who Side, dir Direction, ctn uint64) []Add {
	offeredBy := who
	if dir == Received {
		offeredBy = other(who)
	}
	return m.view(offeredBy, ctn)
}

// PendingHTLCs returns the HTLCs originated by side that are not yet
// resolved at side's current ctn.
func (m *Manager) PendingHTLCs(side Side) []Add {
	return m.view(side, m.logs[side].ctn)
}

// TotalSettledMsat sums the amounts of HTLCs originated by offeredBy that
// have been settled (not failed), regardless of lock-in height — the
// running total a payer/payee uses to report lifetime sent/received
// volume (carried from Electrum's total_msat query, see SPEC_FULL.md).
func (m *Manager) TotalSettledMsat(offeredBy Side) uint64 {
	l := m.logs[offeredBy]
	var total uint64
	for _, s := range l.settles {
		if a, ok := l.adds[s.id]; ok {
			total += a.AmountMsat
		}
	}
	return total
}

// LogDump is the persisted shape of one side's log.
type LogDump struct {
	Ctn     uint64            `json:"ctn"`
	Adds    map[uint64]Add    `json:"adds"`
	AddedAt map[uint64]uint64 `json:"added_at"`
	Settles []SettleDump      `json:"settles"`
	Fails   []FailDump        `json:"fails"`
}

// SettleDump is the persisted shape of a settle resolution.
type SettleDump struct {
	ID         uint64  `json:"id"`
	Preimage   [32]byte `json:"preimage"`
	ResolvedAt uint64  `json:"resolved_at"`
}

// FailDump is the persisted shape of a fail resolution.
type FailDump struct {
	ID         uint64 `json:"id"`
	Reason     []byte `json:"reason"`
	ResolvedAt uint64 `json:"resolved_at"`
}

// Dump returns both sides' logs in persisted form.
func (m *Manager) Dump() (local, remote LogDump) {
	return m.dumpSide(Local), m.dumpSide(Remote)
}

func (m *Manager) dumpSide(side Side) LogDump {
	l := m.logs[side]

	d := LogDump{
		Ctn:     l.ctn,
		Adds:    make(map[uint64]Add, len(l.adds)),
		AddedAt: make(map[uint64]uint64, len(l.addedAt)),
	}
	for id, a := range l.adds {
		d.Adds[id] = a
	}
	for id, at := range l.addedAt {
		d.AddedAt[id] = at
	}
	for _, s := range l.settles {
		d.Settles = append(d.Settles, SettleDump{ID: s.id, Preimage: s.preimage, ResolvedAt: s.resolvedAt})
	}
	for _, f := range l.fails {
		d.Fails = append(d.Fails, FailDump{ID: f.id, Reason: f.reason, ResolvedAt: f.resolvedAt})
	}
	return d
}

// Restore rebuilds a Manager from both sides' dumps, for loading a
// persisted channel record.
func Restore(local, remote LogDump) *Manager {
	m := &Manager{logs: [2]*log{restoreSide(local), restoreSide(remote)}}
	return m
}

func restoreSide(d LogDump) *log {
	l := newLog()
	l.ctn = d.Ctn
	for id, a := range d.Adds {
		l.adds[id] = a
	}
	for id, at := range d.AddedAt {
		l.addedAt[id] = at
	}
	for _, s := range d.Settles {
		l.settles = append(l.settles, settle{id: s.ID, preimage: s.Preimage, resolvedAt: s.ResolvedAt})
		l.resolved[s.ID] = s.ResolvedAt
	}
	for _, f := range d.Fails {
		l.fails = append(l.fails, fail{id: f.ID, reason: f.Reason, resolvedAt: f.ResolvedAt})
		l.resolved[f.ID] = f.ResolvedAt
	}
	return l
}

func other(s Side) Side {
	if s == Local {
		return Remote
	}
	return Local
}
