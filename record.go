package lnchan

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/lightningnetwork/lnchan/chanrecord"
	"github.com/lightningnetwork/lnchan/htlc"
	"github.com/lightningnetwork/lnchan/lnwire"
	"github.com/lightningnetwork/lnchan/revocation"
)

// ToRecord serializes the channel's full state to the persistence record
// a structured, schema-versioned record with every
// byte field hex-encoded at the boundary. It takes no lock itself;
// callers that need a consistent snapshot under concurrent mutation
// should hold c.RLock() first.
func (c *Channel) ToRecord() *chanrecord.Record {
	r := &chanrecord.Record{
		SchemaVersion: chanrecord.SchemaVersion,
		ChannelID:     hex.EncodeToString(c.ChannelID[:]),
		FundingOutpoint: chanrecord.Outpoint{
			Txid:        hex.EncodeToString(c.FundingOutpoint.Txid[:]),
			OutputIndex: c.FundingOutpoint.OutputIndex,
		},
		NodeID:       pubKeyHex(c.NodeID),
		LocalConfig:  localConfigToRecord(c.Local),
		RemoteConfig: remoteConfigToRecord(c.Remote),
		Constraints: chanrecord.Constraints{
			CapacitySat:            c.Constraints.CapacitySat,
			IsInitiator:            c.Constraints.IsInitiator,
			FundingTxnMinimumDepth: c.Constraints.FundingTxnMinimumDepth,
			FeeratePerKw:           c.Constraints.FeeratePerKw,
		},
		OnionKeys: make(map[string]string, len(c.OnionKeys)),
		State:     c.state.String(),
	}

	if c.ShortChannelID != nil {
		s := fmt.Sprintf("%016x", uint64(*c.ShortChannelID))
		r.ShortChannelID = &s
	}
	if c.RemoteCommitmentToBeRevoked != nil {
		s := hex.EncodeToString(c.RemoteCommitmentToBeRevoked)
		r.RemoteCommitmentToBeRevoked = &s
	}
	for id, key := range c.OnionKeys {
		r.OnionKeys[fmt.Sprintf("%d", id)] = pubKeyHex(key)
	}

	localDump, remoteDump := c.htlcs.Dump()
	r.LocalLog = htlcLogToRecord(localDump)
	r.RemoteLog = htlcLogToRecord(remoteDump)

	for _, b := range c.remoteRevocationStore.Dump() {
		r.RemoteRevocationStore = append(r.RemoteRevocationStore, chanrecord.RevocationBucket{
			Bucket: b.Bucket,
			Index:  b.Index,
			Secret: hex.EncodeToString(b.Secret[:]),
		})
	}

	return r
}

// FromRecord rebuilds a Channel from a persisted record. The caller must
// supply the same injected capabilities (PreimageLookup, WatcherSink) the
// channel was originally constructed with; these are orchestrator-side
// dependencies and are never persisted.
func FromRecord(r *chanrecord.Record, preimageLookup PreimageLookup, watcherSink WatcherSink) (*Channel, error) {
	channelID, err := hexArray32(r.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("chanrecord: channel_id: %w", err)
	}
	fundingTxid, err := hexArray32(r.FundingOutpoint.Txid)
	if err != nil {
		return nil, fmt.Errorf("chanrecord: funding_outpoint.txid: %w", err)
	}
	nodeID, err := parsePubKey(r.NodeID)
	if err != nil {
		return nil, fmt.Errorf("chanrecord: node_id: %w", err)
	}

	local, err := localConfigFromRecord(r.LocalConfig)
	if err != nil {
		return nil, fmt.Errorf("chanrecord: local_config: %w", err)
	}
	remote, err := remoteConfigFromRecord(r.RemoteConfig)
	if err != nil {
		return nil, fmt.Errorf("chanrecord: remote_config: %w", err)
	}

	c := New(lnwire.ChannelID(channelID),
		Outpoint{Txid: fundingTxid, OutputIndex: r.FundingOutpoint.OutputIndex},
		nodeID, local, remote,
		Constraints{
			CapacitySat:            r.Constraints.CapacitySat,
			IsInitiator:            r.Constraints.IsInitiator,
			FundingTxnMinimumDepth: r.Constraints.FundingTxnMinimumDepth,
			FeeratePerKw:           r.Constraints.FeeratePerKw,
		},
		preimageLookup, watcherSink)

	if r.ShortChannelID != nil {
		v, err := hexUint64(*r.ShortChannelID)
		if err != nil {
			return nil, fmt.Errorf("chanrecord: short_channel_id: %w", err)
		}
		scid := lnwire.ShortChannelID(v)
		c.ShortChannelID = &scid
	}
	if r.RemoteCommitmentToBeRevoked != nil {
		b, err := hex.DecodeString(*r.RemoteCommitmentToBeRevoked)
		if err != nil {
			return nil, fmt.Errorf("chanrecord: remote_commitment_to_be_revoked: %w", err)
		}
		c.RemoteCommitmentToBeRevoked = b
	}
	for idStr, keyHex := range r.OnionKeys {
		var id uint64
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			return nil, fmt.Errorf("chanrecord: onion_keys key %q: %w", idStr, err)
		}
		key, err := parsePubKey(keyHex)
		if err != nil {
			return nil, fmt.Errorf("chanrecord: onion_keys[%s]: %w", idStr, err)
		}
		c.OnionKeys[id] = key
	}

	localLog, err := htlcLogFromRecord(r.LocalLog)
	if err != nil {
		return nil, fmt.Errorf("chanrecord: local_log: %w", err)
	}
	remoteLog, err := htlcLogFromRecord(r.RemoteLog)
	if err != nil {
		return nil, fmt.Errorf("chanrecord: remote_log: %w", err)
	}
	c.htlcs = htlc.Restore(localLog, remoteLog)

	var dump []revocation.BucketDump
	for _, b := range r.RemoteRevocationStore {
		secret, err := hexArray32(b.Secret)
		if err != nil {
			return nil, fmt.Errorf("chanrecord: remote_revocation_store: %w", err)
		}
		dump = append(dump, revocation.BucketDump{Bucket: b.Bucket, Index: b.Index, Secret: secret})
	}
	c.remoteRevocationStore = revocation.Restore(dump)

	c.state = stateFromString(r.State)

	return c, nil
}

func localConfigToRecord(l LocalChannelConfig) chanrecord.LocalConfig {
	lc := chanrecord.LocalConfig{
		ConfigCommon:            configCommonToRecord(l.channelConfigCommon),
		MultisigPriv:            privKeyHex(l.MultisigPriv),
		RevocationPriv:          privKeyHex(l.RevocationPriv),
		PaymentPriv:             privKeyHex(l.PaymentPriv),
		DelayedPriv:             privKeyHex(l.DelayedPriv),
		HtlcPriv:                privKeyHex(l.HtlcPriv),
		PerCommitmentSecretSeed: hex.EncodeToString(l.PerCommitmentSecretSeed[:]),
		GotSigForNext:           l.GotSigForNext,
		FundingLockedReceived:   l.FundingLockedReceived,
	}
	lc.CurrentCommitmentSignature = hex.EncodeToString(l.CurrentCommitmentSignature[:])
	for _, sig := range l.CurrentHtlcSignatures {
		lc.CurrentHtlcSignatures = append(lc.CurrentHtlcSignatures, hex.EncodeToString(sig[:]))
	}
	return lc
}

func localConfigFromRecord(r chanrecord.LocalConfig) (LocalChannelConfig, error) {
	common, err := configCommonFromRecord(r.ConfigCommon)
	if err != nil {
		return LocalChannelConfig{}, err
	}

	multisigPriv, err := parsePrivKey(r.MultisigPriv)
	if err != nil {
		return LocalChannelConfig{}, fmt.Errorf("multisig_priv: %w", err)
	}
	revocationPriv, err := parsePrivKey(r.RevocationPriv)
	if err != nil {
		return LocalChannelConfig{}, fmt.Errorf("revocation_priv: %w", err)
	}
	paymentPriv, err := parsePrivKey(r.PaymentPriv)
	if err != nil {
		return LocalChannelConfig{}, fmt.Errorf("payment_priv: %w", err)
	}
	delayedPriv, err := parsePrivKey(r.DelayedPriv)
	if err != nil {
		return LocalChannelConfig{}, fmt.Errorf("delayed_priv: %w", err)
	}
	htlcPriv, err := parsePrivKey(r.HtlcPriv)
	if err != nil {
		return LocalChannelConfig{}, fmt.Errorf("htlc_priv: %w", err)
	}
	seed, err := hexArray32(r.PerCommitmentSecretSeed)
	if err != nil {
		return LocalChannelConfig{}, fmt.Errorf("per_commitment_secret_seed: %w", err)
	}
	sig, err := hexArray64(r.CurrentCommitmentSignature)
	if err != nil {
		return LocalChannelConfig{}, fmt.Errorf("current_commitment_signature: %w", err)
	}

	l := LocalChannelConfig{
		channelConfigCommon:        common,
		MultisigPriv:               multisigPriv,
		RevocationPriv:             revocationPriv,
		PaymentPriv:                paymentPriv,
		DelayedPriv:                delayedPriv,
		HtlcPriv:                   htlcPriv,
		PerCommitmentSecretSeed:    seed,
		CurrentCommitmentSignature: sig,
		GotSigForNext:              r.GotSigForNext,
		FundingLockedReceived:      r.FundingLockedReceived,
	}
	for _, s := range r.CurrentHtlcSignatures {
		sig, err := hexArray64(s)
		if err != nil {
			return LocalChannelConfig{}, fmt.Errorf("current_htlc_signatures: %w", err)
		}
		l.CurrentHtlcSignatures = append(l.CurrentHtlcSignatures, sig)
	}
	return l, nil
}

func remoteConfigToRecord(r RemoteChannelConfig) chanrecord.RemoteConfig {
	return chanrecord.RemoteConfig{ConfigCommon: configCommonToRecord(r.channelConfigCommon)}
}

func remoteConfigFromRecord(r chanrecord.RemoteConfig) (RemoteChannelConfig, error) {
	common, err := configCommonFromRecord(r.ConfigCommon)
	if err != nil {
		return RemoteChannelConfig{}, err
	}
	return RemoteChannelConfig{channelConfigCommon: common}, nil
}

func configCommonToRecord(c channelConfigCommon) chanrecord.ConfigCommon {
	cc := chanrecord.ConfigCommon{
		MultisigKey:          pubKeyHex(c.MultisigKey),
		RevocationBasepoint:  pubKeyHex(c.RevocationBasepoint),
		PaymentBasepoint:     pubKeyHex(c.PaymentBasepoint),
		DelayedBasepoint:     pubKeyHex(c.DelayedBasepoint),
		HtlcBasepoint:        pubKeyHex(c.HtlcBasepoint),
		ToSelfDelay:          c.ToSelfDelay,
		DustLimitSat:         c.DustLimitSat,
		MaxHTLCValueInFlight: c.MaxHTLCValueInFlight,
		MaxAcceptedHTLCs:     c.MaxAcceptedHTLCs,
		InitialMsat:          c.InitialMsat,
		ReserveSat:           c.ReserveSat,
		CTN:                  c.CTN,
		NextHTLCID:           c.NextHTLCID,
	}
	if c.CurrentPerCommitmentPoint != nil {
		cc.CurrentPerCommitmentPoint = pubKeyHex(c.CurrentPerCommitmentPoint)
	}
	if c.NextPerCommitmentPoint != nil {
		cc.NextPerCommitmentPoint = pubKeyHex(c.NextPerCommitmentPoint)
	}
	return cc
}

func configCommonFromRecord(r chanrecord.ConfigCommon) (channelConfigCommon, error) {
	multisigKey, err := parsePubKey(r.MultisigKey)
	if err != nil {
		return channelConfigCommon{}, fmt.Errorf("multisig_key: %w", err)
	}
	revocationBP, err := parsePubKey(r.RevocationBasepoint)
	if err != nil {
		return channelConfigCommon{}, fmt.Errorf("revocation_basepoint: %w", err)
	}
	paymentBP, err := parsePubKey(r.PaymentBasepoint)
	if err != nil {
		return channelConfigCommon{}, fmt.Errorf("payment_basepoint: %w", err)
	}
	delayedBP, err := parsePubKey(r.DelayedBasepoint)
	if err != nil {
		return channelConfigCommon{}, fmt.Errorf("delayed_basepoint: %w", err)
	}
	htlcBP, err := parsePubKey(r.HtlcBasepoint)
	if err != nil {
		return channelConfigCommon{}, fmt.Errorf("htlc_basepoint: %w", err)
	}

	cc := channelConfigCommon{
		MultisigKey:          multisigKey,
		RevocationBasepoint:  revocationBP,
		PaymentBasepoint:     paymentBP,
		DelayedBasepoint:     delayedBP,
		HtlcBasepoint:        htlcBP,
		ToSelfDelay:          r.ToSelfDelay,
		DustLimitSat:         r.DustLimitSat,
		MaxHTLCValueInFlight: r.MaxHTLCValueInFlight,
		MaxAcceptedHTLCs:     r.MaxAcceptedHTLCs,
		InitialMsat:          r.InitialMsat,
		ReserveSat:           r.ReserveSat,
		CTN:                  r.CTN,
		NextHTLCID:           r.NextHTLCID,
	}
	if r.CurrentPerCommitmentPoint != "" {
		cc.CurrentPerCommitmentPoint, err = parsePubKey(r.CurrentPerCommitmentPoint)
		if err != nil {
			return channelConfigCommon{}, fmt.Errorf("current_per_commitment_point: %w", err)
		}
	}
	if r.NextPerCommitmentPoint != "" {
		cc.NextPerCommitmentPoint, err = parsePubKey(r.NextPerCommitmentPoint)
		if err != nil {
			return channelConfigCommon{}, fmt.Errorf("next_per_commitment_point: %w", err)
		}
	}
	return cc, nil
}

func htlcLogToRecord(d htlc.LogDump) chanrecord.HTLCLog {
	l := chanrecord.HTLCLog{
		Ctn:     d.Ctn,
		Adds:    make(map[string]chanrecord.Add, len(d.Adds)),
		AddedAt: make(map[string]uint64, len(d.AddedAt)),
	}
	for id, a := range d.Adds {
		l.Adds[fmt.Sprintf("%d", id)] = chanrecord.Add{
			PaymentHash: hex.EncodeToString(a.PaymentHash[:]),
			AmountMsat:  a.AmountMsat,
			CltvExpiry:  a.CltvExpiry,
			ID:          a.ID,
			Timestamp:   a.Timestamp,
		}
	}
	for id, at := range d.AddedAt {
		l.AddedAt[fmt.Sprintf("%d", id)] = at
	}
	for _, s := range d.Settles {
		l.Settles = append(l.Settles, chanrecord.Settle{
			ID: s.ID, Preimage: hex.EncodeToString(s.Preimage[:]), ResolvedAt: s.ResolvedAt,
		})
	}
	for _, f := range d.Fails {
		l.Fails = append(l.Fails, chanrecord.Fail{
			ID: f.ID, Reason: hex.EncodeToString(f.Reason), ResolvedAt: f.ResolvedAt,
		})
	}
	return l
}

func htlcLogFromRecord(r chanrecord.HTLCLog) (htlc.LogDump, error) {
	d := htlc.LogDump{
		Ctn:     r.Ctn,
		Adds:    make(map[uint64]htlc.Add, len(r.Adds)),
		AddedAt: make(map[uint64]uint64, len(r.AddedAt)),
	}
	for idStr, a := range r.Adds {
		var id uint64
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			return htlc.LogDump{}, fmt.Errorf("adds key %q: %w", idStr, err)
		}
		hash, err := hexArray32(a.PaymentHash)
		if err != nil {
			return htlc.LogDump{}, fmt.Errorf("adds[%s].payment_hash: %w", idStr, err)
		}
		d.Adds[id] = htlc.Add{
			PaymentHash: hash,
			AmountMsat:  a.AmountMsat,
			CltvExpiry:  a.CltvExpiry,
			ID:          a.ID,
			Timestamp:   a.Timestamp,
		}
	}
	for idStr, at := range r.AddedAt {
		var id uint64
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			return htlc.LogDump{}, fmt.Errorf("added_at key %q: %w", idStr, err)
		}
		d.AddedAt[id] = at
	}
	for _, s := range r.Settles {
		preimage, err := hexArray32(s.Preimage)
		if err != nil {
			return htlc.LogDump{}, fmt.Errorf("settles: %w", err)
		}
		d.Settles = append(d.Settles, htlc.SettleDump{ID: s.ID, Preimage: preimage, ResolvedAt: s.ResolvedAt})
	}
	for _, f := range r.Fails {
		reason, err := hex.DecodeString(f.Reason)
		if err != nil {
			return htlc.LogDump{}, fmt.Errorf("fails: %w", err)
		}
		d.Fails = append(d.Fails, htlc.FailDump{ID: f.ID, Reason: reason, ResolvedAt: f.ResolvedAt})
	}
	return d, nil
}

func stateFromString(s string) ChannelState {
	switch s {
	case "OPENING":
		return Opening
	case "FUNDED":
		return Funded
	case "OPEN":
		return Open
	case "CLOSING":
		return Closing
	case "FORCE_CLOSING":
		return ForceClosing
	case "CLOSED":
		return Closed
	default:
		return PreOpening
	}
}

func pubKeyHex(k *btcec.PublicKey) string {
	if k == nil {
		return ""
	}
	return hex.EncodeToString(k.SerializeCompressed())
}

func parsePubKey(s string) (*btcec.PublicKey, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return btcec.ParsePubKey(b)
}

func privKeyHex(k *btcec.PrivateKey) string {
	if k == nil {
		return ""
	}
	return hex.EncodeToString(k.Serialize())
}

func parsePrivKey(s string) (*btcec.PrivateKey, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv, nil
}

func hexArray32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func hexArray64(s string) ([64]byte, error) {
	var out [64]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 64 {
		return out, fmt.Errorf("expected 64 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func hexUint64(s string) (uint64, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return 0, err
	}
	if len(b) != 8 {
		return 0, fmt.Errorf("expected 8 bytes, got %d", len(b))
	}
	var v uint64
	for _, by := range b {
		v = v<<8 | uint64(by)
	}
	return v, nil
}
