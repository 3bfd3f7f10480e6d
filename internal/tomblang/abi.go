package tomblang

import "github.com/iotaledger/hive.go/serializer/v2/marshalutil"

// EncodeABI serializes a module's methods into a length-prefixed table,
// ordered as declaration-order public methods followed by triggers.
// Constructors and internal/private methods are not part of the externally
// callable ABI surface. Fields are packed with marshalutil rather than
// hand-rolled byte slicing, so the wire format stays consistent with the
// rest of the stack.
func EncodeABI(moduleName string, methods []*CompiledMethod, offsets []uint32) []byte {
	offsetOf := make(map[*CompiledMethod]uint32, len(methods))
	for i, m := range methods {
		offsetOf[m] = offsets[i]
	}
	ordered := orderForABI(methods)

	mu := marshalutil.New()
	writeLPString(mu, moduleName)
	mu.WriteUint32(uint32(len(ordered)))
	for _, m := range ordered {
		writeLPString(mu, m.Name)
		mu.WriteUint32(offsetOf[m])
		mu.WriteByte(vmTypeCodeByte(m.ReturnType))
		mu.WriteByte(byte(len(m.Params)))
		for i, p := range m.Params {
			writeLPString(mu, p.Name)
			mu.WriteByte(vmTypeCodeByte(m.ParamTypes[i]))
		}
		mu.WriteByte(abiFlags(m))
	}
	return mu.Bytes()
}

// orderForABI orders methods declaration-order public methods first, then
// triggers, dropping constructors and non-public methods.
func orderForABI(methods []*CompiledMethod) []*CompiledMethod {
	var pub, triggers []*CompiledMethod
	for _, m := range methods {
		if m.Kind == MethodConstructor {
			continue
		}
		if m.Visibility != VisPublic {
			continue
		}
		if m.Kind == MethodTrigger {
			triggers = append(triggers, m)
			continue
		}
		pub = append(pub, m)
	}
	return append(pub, triggers...)
}

// abiFlags packs the variadic and trigger bits: bit 0 is the variadic
// ("T*") flag, bit 1 marks a trigger.
func abiFlags(m *CompiledMethod) byte {
	var f byte
	if m.Variadic {
		f |= 1 << 0
	}
	if m.Kind == MethodTrigger {
		f |= 1 << 1
	}
	return f
}

// vmTypeCodeByte encodes a return/param type as the single byte the ABI
// format calls for; None is distinct from every value type.
func vmTypeCodeByte(t *Type) byte {
	if t == nil || t.Kind == KindNone {
		return 0xFF
	}
	code, ok := vmTypeCode(t.Kind.String())
	if !ok {
		return 0xFE // Any / unrecognized-by-the-VM-type-table
	}
	return byte(code)
}

func writeLPString(mu *marshalutil.MarshalUtil, s string) {
	mu.WriteUint32(uint32(len(s)))
	mu.WriteBytes([]byte(s))
}

// ABIParam is one decoded method parameter, per DecodeABI.
type ABIParam struct {
	Name string `json:"name"`
	Type byte   `json:"type"`
}

// ABIMethod is one decoded ABI table entry.
type ABIMethod struct {
	Name       string     `json:"name"`
	Offset     uint32     `json:"offset"`
	ReturnType byte       `json:"returnType"`
	Params     []ABIParam `json:"params"`
	Variadic   bool       `json:"variadic"`
	Trigger    bool       `json:"trigger"`
}

// DecodedABI is EncodeABI's inverse shape, for tools that need to inspect a
// stored or freshly compiled ABI table (cmd/tombc's -json output).
type DecodedABI struct {
	ModuleName string      `json:"moduleName"`
	Methods    []ABIMethod `json:"methods"`
}

// DecodeABI parses bytes produced by EncodeABI. It never runs on untrusted
// network input in this repository: the ABI table travels alongside its
// script inside internal/artifacts, both written by the same compiler run.
func DecodeABI(data []byte) (*DecodedABI, error) {
	mu := marshalutil.New(data)

	name, err := readLPString(mu)
	if err != nil {
		return nil, err
	}
	count, err := mu.ReadUint32()
	if err != nil {
		return nil, err
	}

	out := &DecodedABI{ModuleName: name}
	for i := uint32(0); i < count; i++ {
		mName, err := readLPString(mu)
		if err != nil {
			return nil, err
		}
		offset, err := mu.ReadUint32()
		if err != nil {
			return nil, err
		}
		retType, err := mu.ReadByte()
		if err != nil {
			return nil, err
		}
		paramCount, err := mu.ReadByte()
		if err != nil {
			return nil, err
		}
		params := make([]ABIParam, 0, paramCount)
		for p := byte(0); p < paramCount; p++ {
			pName, err := readLPString(mu)
			if err != nil {
				return nil, err
			}
			pType, err := mu.ReadByte()
			if err != nil {
				return nil, err
			}
			params = append(params, ABIParam{Name: pName, Type: pType})
		}
		flags, err := mu.ReadByte()
		if err != nil {
			return nil, err
		}
		out.Methods = append(out.Methods, ABIMethod{
			Name:       mName,
			Offset:     offset,
			ReturnType: retType,
			Params:     params,
			Variadic:   flags&(1<<0) != 0,
			Trigger:    flags&(1<<1) != 0,
		})
	}
	return out, nil
}

func readLPString(mu *marshalutil.MarshalUtil) (string, error) {
	n, err := mu.ReadUint32()
	if err != nil {
		return "", err
	}
	b, err := mu.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
