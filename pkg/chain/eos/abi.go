package eos

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

const timePointSecLayout = "2006-01-02T15:04:05"

// ABI is the subset of a contract ABI needed to serialize action data.
type ABI struct {
	Version string       `json:"version"`
	Types   []ABITypeDef `json:"types"`
	Structs []ABIStruct  `json:"structs"`
	Actions []ABIAction  `json:"actions"`

	once    sync.Once
	types   map[string]string
	structs map[string]*ABIStruct
	actions map[string]string
}

type ABITypeDef struct {
	NewTypeName string `json:"new_type_name"`
	Type        string `json:"type"`
}

type ABIStruct struct {
	Name   string     `json:"name"`
	Base   string     `json:"base"`
	Fields []ABIField `json:"fields"`
}

type ABIField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type ABIAction struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func ParseABI(data []byte) (*ABI, error) {
	var abi ABI
	if err := json.Unmarshal(data, &abi); err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	return &abi, nil
}

func (a *ABI) index() {
	a.once.Do(func() {
		a.types = make(map[string]string, len(a.Types))
		for _, t := range a.Types {
			a.types[t.NewTypeName] = t.Type
		}
		a.structs = make(map[string]*ABIStruct, len(a.Structs))
		for i := range a.Structs {
			a.structs[a.Structs[i].Name] = &a.Structs[i]
		}
		a.actions = make(map[string]string, len(a.Actions))
		for _, act := range a.Actions {
			a.actions[act.Name] = act.Type
		}
	})
}

func (a *ABI) HasAction(name string) bool {
	a.index()
	_, ok := a.actions[name]
	return ok
}

func (a *ABI) actionType(name string) (string, error) {
	a.index()
	t, ok := a.actions[name]
	if !ok {
		return "", fmt.Errorf("action %q not found in abi", name)
	}
	return t, nil
}

func (a *ABI) resolve(t string) string {
	for i := 0; i < 32; i++ {
		next, ok := a.types[t]
		if !ok {
			return t
		}
		t = next
	}
	return t
}

// EncodeAction serializes the human readable data of an action.
func (a *ABI) EncodeAction(action string, data map[string]any) ([]byte, error) {
	t, err := a.actionType(action)
	if err != nil {
		return nil, err
	}
	e := &encoder{}
	if err := a.encode(e, t, data); err != nil {
		return nil, fmt.Errorf("encode %s: %w", action, err)
	}
	return e.Bytes(), nil
}

// DecodeAction is the inverse of EncodeAction.
func (a *ABI) DecodeAction(action string, data []byte) (map[string]any, error) {
	t, err := a.actionType(action)
	if err != nil {
		return nil, err
	}
	d := newDecoder(data)
	v, err := a.decode(d, t)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", action, err)
	}
	if err := d.expectEOF(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", action, err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode %s: action type is not a struct", action)
	}
	return m, nil
}

func (a *ABI) encode(e *encoder, typ string, v any) error {
	a.index()
	if strings.HasSuffix(typ, "?") {
		if v == nil {
			e.writeUint8(0)
			return nil
		}
		e.writeUint8(1)
		return a.encode(e, strings.TrimSuffix(typ, "?"), v)
	}
	if strings.HasSuffix(typ, "[]") {
		items, ok := v.([]any)
		if !ok && v != nil {
			return fmt.Errorf("expected array for %s, got %T", typ, v)
		}
		e.writeVarUint32(uint32(len(items)))
		for _, item := range items {
			if err := a.encode(e, strings.TrimSuffix(typ, "[]"), item); err != nil {
				return err
			}
		}
		return nil
	}
	typ = a.resolve(typ)
	if s, ok := a.structs[typ]; ok {
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("expected object for %s, got %T", typ, v)
		}
		return a.encodeStruct(e, s, m)
	}
	return encodeBuiltin(e, typ, v)
}

func (a *ABI) encodeStruct(e *encoder, s *ABIStruct, m map[string]any) error {
	if s.Base != "" {
		base, ok := a.structs[a.resolve(s.Base)]
		if !ok {
			return fmt.Errorf("unknown base %q of %s", s.Base, s.Name)
		}
		if err := a.encodeStruct(e, base, m); err != nil {
			return err
		}
	}
	for _, f := range s.Fields {
		v, present := m[f.Name]
		if !present && !strings.HasSuffix(f.Type, "?") {
			return fmt.Errorf("missing field %s.%s", s.Name, f.Name)
		}
		if err := a.encode(e, f.Type, v); err != nil {
			return fmt.Errorf("%s.%s: %w", s.Name, f.Name, err)
		}
	}
	return nil
}

func (a *ABI) decode(d *decoder, typ string) (any, error) {
	a.index()
	if strings.HasSuffix(typ, "?") {
		flag, err := d.readUint8()
		if err != nil {
			return nil, err
		}
		if flag == 0 {
			return nil, nil
		}
		return a.decode(d, strings.TrimSuffix(typ, "?"))
	}
	if strings.HasSuffix(typ, "[]") {
		n, err := d.readVarUint32()
		if err != nil {
			return nil, err
		}
		items := make([]any, 0, n)
		for i := uint32(0); i < n; i++ {
			item, err := a.decode(d, strings.TrimSuffix(typ, "[]"))
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	}
	typ = a.resolve(typ)
	if s, ok := a.structs[typ]; ok {
		m := map[string]any{}
		if err := a.decodeStruct(d, s, m); err != nil {
			return nil, err
		}
		return m, nil
	}
	return decodeBuiltin(d, typ)
}

func (a *ABI) decodeStruct(d *decoder, s *ABIStruct, m map[string]any) error {
	if s.Base != "" {
		base, ok := a.structs[a.resolve(s.Base)]
		if !ok {
			return fmt.Errorf("unknown base %q of %s", s.Base, s.Name)
		}
		if err := a.decodeStruct(d, base, m); err != nil {
			return err
		}
	}
	for _, f := range s.Fields {
		v, err := a.decode(d, f.Type)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", s.Name, f.Name, err)
		}
		// unset optionals never show up in the decoded form
		if v == nil && strings.HasSuffix(f.Type, "?") {
			continue
		}
		m[f.Name] = v
	}
	return nil
}

func encodeBuiltin(e *encoder, typ string, v any) error {
	switch typ {
	case "bool":
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		if b {
			e.writeUint8(1)
		} else {
			e.writeUint8(0)
		}
	case "int8", "int16", "int32", "int64":
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		switch typ {
		case "int8":
			e.writeUint8(uint8(int8(n)))
		case "int16":
			e.writeUint16(uint16(int16(n)))
		case "int32":
			e.writeUint32(uint32(int32(n)))
		default:
			e.writeUint64(uint64(n))
		}
	case "uint8", "uint16", "uint32", "uint64", "varuint32":
		n, err := toUint64(v)
		if err != nil {
			return err
		}
		switch typ {
		case "uint8":
			e.writeUint8(uint8(n))
		case "uint16":
			e.writeUint16(uint16(n))
		case "uint32":
			e.writeUint32(uint32(n))
		case "varuint32":
			e.writeVarUint32(uint32(n))
		default:
			e.writeUint64(n)
		}
	case "float64":
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("expected float64, got %T", v)
		}
		e.writeUint64(math.Float64bits(f))
	case "name", "account_name", "permission_name", "action_name":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected name string, got %T", v)
		}
		return e.writeName(s)
	case "string":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		e.writeString(s)
	case "bytes":
		b, err := toBytes(v)
		if err != nil {
			return err
		}
		e.writeBytes(b)
	case "checksum256":
		b, err := toBytes(v)
		if err != nil {
			return err
		}
		if len(b) != 32 {
			return fmt.Errorf("checksum256 must be 32 bytes, got %d", len(b))
		}
		e.writeRaw(b)
	case "public_key":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected public key string, got %T", v)
		}
		pk, err := ParsePublicKey(s)
		if err != nil {
			return err
		}
		e.writeUint8(0)
		e.writeRaw(pk[:])
	case "signature":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected signature string, got %T", v)
		}
		sig, err := ParseSignature(s)
		if err != nil {
			return err
		}
		e.writeUint8(0)
		e.writeRaw(sig[:])
	case "asset":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected asset string, got %T", v)
		}
		asset, err := ParseAsset(s)
		if err != nil {
			return err
		}
		e.writeUint64(uint64(asset.Amount))
		e.writeUint64(asset.Symbol.value())
	case "symbol":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected symbol string, got %T", v)
		}
		sym, err := ParseSymbol(s)
		if err != nil {
			return err
		}
		e.writeUint64(sym.value())
	case "symbol_code":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected symbol code string, got %T", v)
		}
		code, err := symbolCodeValue(s)
		if err != nil {
			return err
		}
		e.writeUint64(code)
	case "time_point_sec":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected time string, got %T", v)
		}
		t, err := time.Parse(timePointSecLayout, strings.TrimSuffix(s, ".000"))
		if err != nil {
			return err
		}
		e.writeUint32(uint32(t.Unix()))
	default:
		return fmt.Errorf("unsupported abi type %q", typ)
	}
	return nil
}

func decodeBuiltin(d *decoder, typ string) (any, error) {
	switch typ {
	case "bool":
		b, err := d.readUint8()
		return b != 0, err
	case "int8":
		n, err := d.readUint8()
		return int64(int8(n)), err
	case "int16":
		n, err := d.readUint16()
		return int64(int16(n)), err
	case "int32":
		n, err := d.readUint32()
		return int64(int32(n)), err
	case "int64":
		n, err := d.readUint64()
		return int64(n), err
	case "uint8":
		n, err := d.readUint8()
		return uint64(n), err
	case "uint16":
		n, err := d.readUint16()
		return uint64(n), err
	case "uint32":
		n, err := d.readUint32()
		return uint64(n), err
	case "varuint32":
		n, err := d.readVarUint32()
		return uint64(n), err
	case "uint64":
		return d.readUint64()
	case "float64":
		n, err := d.readUint64()
		return math.Float64frombits(n), err
	case "name", "account_name", "permission_name", "action_name":
		return d.readName()
	case "string":
		return d.readString()
	case "bytes":
		b, err := d.readBytes()
		if err != nil {
			return nil, err
		}
		return hex.EncodeToString(b), nil
	case "checksum256":
		b, err := d.readN(32)
		if err != nil {
			return nil, err
		}
		return hex.EncodeToString(b), nil
	case "public_key":
		if _, err := d.readUint8(); err != nil {
			return nil, err
		}
		b, err := d.readN(PublicKeyLen)
		if err != nil {
			return nil, err
		}
		var pk PublicKey
		copy(pk[:], b)
		return pk.String(), nil
	case "signature":
		if _, err := d.readUint8(); err != nil {
			return nil, err
		}
		b, err := d.readN(SignatureLen)
		if err != nil {
			return nil, err
		}
		var sig Signature
		copy(sig[:], b)
		return sig.String(), nil
	case "asset":
		amount, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		sym, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		return Asset{Amount: int64(amount), Symbol: symbolFromValue(sym)}.String(), nil
	case "symbol":
		sym, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		return symbolFromValue(sym).String(), nil
	case "symbol_code":
		code, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		return symbolCodeString(code), nil
	case "time_point_sec":
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		return time.Unix(int64(n), 0).UTC().Format(timePointSecLayout), nil
	}
	return nil, fmt.Errorf("unsupported abi type %q", typ)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("expected integer, got %v", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case string:
		return strconv.ParseUint(n, 10, 64)
	case json.Number:
		return strconv.ParseUint(n.String(), 10, 64)
	case uint64:
		return n, nil
	}
	i, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, fmt.Errorf("expected unsigned integer, got %d", i)
	}
	return uint64(i), nil
}

func toBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return hex.DecodeString(strings.TrimPrefix(b, "0x"))
	}
	return nil, fmt.Errorf("expected hex string, got %T", v)
}
