package dispatch

// Kind is the shape of one dynamic operation.
type Kind uint8

const (
	_ Kind = iota
	Get
	Set
	GetIndex
	SetIndex
	InvokeMember
	InvokeMemberAction
	InvokeMemberUnknown
	Invoke
	InvokeAction
	InvokeUnknown
	Constructor
	AddAssign
	SubtractAssign
	IsEvent
	Convert
)

var kindNames = [...]string{
	Get:                 "Get",
	Set:                 "Set",
	GetIndex:            "GetIndex",
	SetIndex:            "SetIndex",
	InvokeMember:        "InvokeMember",
	InvokeMemberAction:  "InvokeMemberAction",
	InvokeMemberUnknown: "InvokeMemberUnknown",
	Invoke:              "Invoke",
	InvokeAction:        "InvokeAction",
	InvokeUnknown:       "InvokeUnknown",
	Constructor:         "Constructor",
	AddAssign:           "AddAssign",
	SubtractAssign:      "SubtractAssign",
	IsEvent:             "IsEvent",
	Convert:             "Convert",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "Kind(?)"
}

// Named reports whether operations of this kind address a member by name.
func (k Kind) Named() bool {
	switch k {
	case Get, Set, InvokeMember, InvokeMemberAction, InvokeMemberUnknown,
		AddAssign, SubtractAssign, IsEvent:
		return true
	}
	return false
}
