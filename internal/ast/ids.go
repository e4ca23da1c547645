package ast

type (
	// Top-level declarations
	FuncID   uint32
	ClassID  uint32
	GlobalID uint32
	// Body nodes
	StmtID     uint32
	ExprID     uint32
	TypeExprID uint32
	// Payload indirection inside an arena collection
	PayloadID uint32
)

const (
	NoFuncID     FuncID     = 0
	NoClassID    ClassID    = 0
	NoGlobalID   GlobalID   = 0
	NoStmtID     StmtID     = 0
	NoExprID     ExprID     = 0
	NoTypeExprID TypeExprID = 0
	NoPayloadID  PayloadID  = 0
)

func (id FuncID) IsValid() bool     { return id != NoFuncID }
func (id ClassID) IsValid() bool    { return id != NoClassID }
func (id GlobalID) IsValid() bool   { return id != NoGlobalID }
func (id StmtID) IsValid() bool     { return id != NoStmtID }
func (id ExprID) IsValid() bool     { return id != NoExprID }
func (id TypeExprID) IsValid() bool { return id != NoTypeExprID }
func (id PayloadID) IsValid() bool  { return id != NoPayloadID }
