package eos

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Header is the time sensitive part of a transaction.
type Header struct {
	Expiration       uint32 `json:"expiration"`
	RefBlockNum      uint16 `json:"ref_block_num"`
	RefBlockPrefix   uint32 `json:"ref_block_prefix"`
	MaxNetUsageWords uint32 `json:"max_net_usage_words"`
	MaxCPUUsageMs    uint8  `json:"max_cpu_usage_ms"`
	DelaySec         uint32 `json:"delay_sec"`
}

func (h Header) ExpiresAt() time.Time {
	return time.Unix(int64(h.Expiration), 0).UTC()
}

func encodeAction(e *encoder, a *Action) error {
	if err := e.writeName(a.Account); err != nil {
		return err
	}
	if err := e.writeName(a.Name); err != nil {
		return err
	}
	e.writeVarUint32(uint32(len(a.Authorization)))
	for _, p := range a.Authorization {
		if err := e.writeName(p.Actor); err != nil {
			return err
		}
		if err := e.writeName(p.Permission); err != nil {
			return err
		}
	}
	e.writeBytes(a.Data)
	return nil
}

func decodeAction(d *decoder) (*Action, error) {
	var a Action
	var err error
	if a.Account, err = d.readName(); err != nil {
		return nil, err
	}
	if a.Name, err = d.readName(); err != nil {
		return nil, err
	}
	n, err := d.readVarUint32()
	if err != nil {
		return nil, err
	}
	a.Authorization = make([]PermissionLevel, 0, n)
	for i := uint32(0); i < n; i++ {
		var p PermissionLevel
		if p.Actor, err = d.readName(); err != nil {
			return nil, err
		}
		if p.Permission, err = d.readName(); err != nil {
			return nil, err
		}
		a.Authorization = append(a.Authorization, p)
	}
	if a.Data, err = d.readBytes(); err != nil {
		return nil, err
	}
	return &a, nil
}

// serializeTransaction produces the packed transaction body. Context free
// actions and extensions are always empty.
func serializeTransaction(h Header, actions []*Action) ([]byte, error) {
	e := &encoder{}
	e.writeUint32(h.Expiration)
	e.writeUint16(h.RefBlockNum)
	e.writeUint32(h.RefBlockPrefix)
	e.writeVarUint32(h.MaxNetUsageWords)
	e.writeUint8(h.MaxCPUUsageMs)
	e.writeVarUint32(h.DelaySec)
	e.writeVarUint32(0)
	e.writeVarUint32(uint32(len(actions)))
	for _, a := range actions {
		if err := encodeAction(e, a); err != nil {
			return nil, err
		}
	}
	e.writeVarUint32(0)
	return e.Bytes(), nil
}

func deserializeTransaction(raw []byte) (Header, []*Action, error) {
	var h Header
	var err error
	d := newDecoder(raw)
	if h.Expiration, err = d.readUint32(); err != nil {
		return h, nil, err
	}
	if h.RefBlockNum, err = d.readUint16(); err != nil {
		return h, nil, err
	}
	if h.RefBlockPrefix, err = d.readUint32(); err != nil {
		return h, nil, err
	}
	if h.MaxNetUsageWords, err = d.readVarUint32(); err != nil {
		return h, nil, err
	}
	if h.MaxCPUUsageMs, err = d.readUint8(); err != nil {
		return h, nil, err
	}
	if h.DelaySec, err = d.readVarUint32(); err != nil {
		return h, nil, err
	}
	cfa, err := d.readVarUint32()
	if err != nil {
		return h, nil, err
	}
	for i := uint32(0); i < cfa; i++ {
		if _, err := decodeAction(d); err != nil {
			return h, nil, err
		}
	}
	n, err := d.readVarUint32()
	if err != nil {
		return h, nil, err
	}
	actions := make([]*Action, 0, n)
	for i := uint32(0); i < n; i++ {
		a, err := decodeAction(d)
		if err != nil {
			return h, nil, err
		}
		actions = append(actions, a)
	}
	ext, err := d.readVarUint32()
	if err != nil {
		return h, nil, err
	}
	for i := uint32(0); i < ext; i++ {
		if _, err := d.readUint16(); err != nil {
			return h, nil, err
		}
		if _, err := d.readBytes(); err != nil {
			return h, nil, err
		}
	}
	return h, actions, d.expectEOF()
}

// signBuffer is chain id, packed transaction and the hash of the (empty)
// context free data.
func signBuffer(chainID string, raw []byte) ([]byte, error) {
	id, err := hex.DecodeString(chainID)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(id)+len(raw)+32)
	buf = append(buf, id...)
	buf = append(buf, raw...)
	buf = append(buf, make([]byte, 32)...)
	return buf, nil
}

func digest(buf []byte) []byte {
	sum := sha256.Sum256(buf)
	return sum[:]
}

func transactionID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
