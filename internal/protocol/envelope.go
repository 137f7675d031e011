package protocol

import (
	"encoding/json"

	"github.com/agenthands/rsgwm/internal/core/model"
)

const (
	TypeUpdate              = "RSGUpdate"
	TypeQuery               = "RSGQuery"
	TypeFunctionBlock       = "RSGFunctionBlock"
	TypeUpdateResult        = "RSGUpdateResult"
	TypeQueryResult         = "RSGQueryResult"
	TypeFunctionBlockResult = "RSGFunctionBlockResult"
	TypeMonitor             = "RSGMonitor"
)

// Update operations.
const (
	OpCreate               = "CREATE"
	OpCreateRemoteRootNode = "CREATE_REMOTE_ROOT_NODE"
	OpCreateParent         = "CREATE_PARENT"
	OpUpdateAttributes     = "UPDATE_ATTRIBUTES"
	OpUpdateTransform      = "UPDATE_TRANSFORM"
	OpUpdateStart          = "UPDATE_START"
	OpUpdateEnd            = "UPDATE_END"
	OpDeleteNode           = "DELETE_NODE"
	OpDeleteParent         = "DELETE_PARENT"
)

// Queries.
const (
	QueryGetNodes               = "GET_NODES"
	QueryGetNodeAttributes      = "GET_NODE_ATTRIBUTES"
	QueryGetNodeParents         = "GET_NODE_PARENTS"
	QueryGetGroupChildren       = "GET_GROUP_CHILDREN"
	QueryGetRootNode            = "GET_ROOT_NODE"
	QueryGetRemoteRootNodes     = "GET_REMOTE_ROOT_NODES"
	QueryGetTransform           = "GET_TRANSFORM"
	QueryGetConnectionSourceIDs = "GET_CONNECTION_SOURCE_IDS"
	QueryGetConnectionTargetIDs = "GET_CONNECTION_TARGET_IDS"
)

// Function block operations and the monitor operations carried in their
// input.
const (
	BlockLoad    = "LOAD"
	BlockUnload  = "UNLOAD"
	BlockExecute = "EXECUTE"

	BlockOnCreate          = "oncreate"
	BlockOnAttributeChange = "onattributechange"

	MonitorRegister   = "REGISTER"
	MonitorStart      = "START"
	MonitorStop       = "STOP"
	MonitorUnregister = "UNREGISTER"
)

// MatrixType is the only transform representation on the wire.
const MatrixType = "HomogeneousMatrix44"

// Header is the part every envelope shares.
type Header struct {
	WorldModelType string `json:"@worldmodeltype" validate:"required"`
	QueryID        string `json:"queryId,omitempty"`
}

type Update struct {
	Header
	Operation           string `json:"operation" validate:"required,oneof=CREATE CREATE_REMOTE_ROOT_NODE CREATE_PARENT UPDATE_ATTRIBUTES UPDATE_TRANSFORM UPDATE_START UPDATE_END DELETE_NODE DELETE_PARENT"`
	Node                *Node  `json:"node,omitempty"`
	ParentID            string `json:"parentId,omitempty"`
	AttributeUpdateMode string `json:"attributeUpdateMode,omitempty" validate:"omitempty,oneof=REPLACE UPDATE"`
}

type Node struct {
	GraphType       string           `json:"@graphtype,omitempty"`
	SemanticContext string           `json:"@semanticContext,omitempty"`
	ID              string           `json:"id,omitempty"`
	ChildID         string           `json:"childId,omitempty"`
	Attributes      model.Attributes `json:"attributes,omitempty"`
	SourceIDs       []string         `json:"sourceIds,omitempty"`
	TargetIDs       []string         `json:"targetIds,omitempty"`
	History         []HistoryEntry   `json:"history,omitempty"`
	Start           *Stamp           `json:"start,omitempty"`
	End             *Stamp           `json:"end,omitempty"`
}

type HistoryEntry struct {
	Stamp     Stamp     `json:"stamp"`
	Transform Transform `json:"transform"`
}

type Transform struct {
	Type   string      `json:"type"`
	Matrix [][]float64 `json:"matrix"`
	Unit   string      `json:"unit,omitempty"`
}

type Query struct {
	Header
	Query           string            `json:"query" validate:"required"`
	Attributes      []model.Predicate `json:"attributes,omitempty"`
	SubgraphID      string            `json:"subgraphId,omitempty"`
	ID              string            `json:"id,omitempty"`
	IDReferenceNode string            `json:"idReferenceNode,omitempty"`
	TimeStamp       *Stamp            `json:"timeStamp,omitempty"`
}

type FunctionBlock struct {
	Header
	Metamodel string          `json:"metamodel,omitempty"`
	Name      string          `json:"name" validate:"required"`
	Operation string          `json:"operation" validate:"required,oneof=LOAD UNLOAD EXECUTE"`
	Input     json.RawMessage `json:"input,omitempty"`
}

// MonitorInput is the input of an EXECUTE on a monitor function block.
type MonitorInput struct {
	Metamodel        string            `json:"metamodel,omitempty"`
	MonitorOperation string            `json:"monitorOperation" validate:"required,oneof=REGISTER START STOP UNREGISTER"`
	MonitorID        string            `json:"monitorId" validate:"required"`
	ID               string            `json:"id,omitempty"`
	AttributeKey     string            `json:"attributeKey,omitempty"`
	Attributes       []model.Predicate `json:"attributes,omitempty"`
}

type UpdateResult struct {
	Header
	UpdateSuccess bool   `json:"updateSuccess"`
	ID            string `json:"id,omitempty"`
	Message       string `json:"message,omitempty"`
	Warning       string `json:"warning,omitempty"`
}

type QueryResult struct {
	Header
	Query        string           `json:"query,omitempty"`
	QuerySuccess bool             `json:"querySuccess"`
	IDs          []string         `json:"ids,omitempty"`
	Attributes   model.Attributes `json:"attributes,omitempty"`
	RootID       string           `json:"rootId,omitempty"`
	Transform    *Transform       `json:"transform,omitempty"`
	TimeStamp    *Stamp           `json:"timeStamp,omitempty"`
	Message      string           `json:"message,omitempty"`
}

type FunctionBlockResult struct {
	Header
	Name             string `json:"name,omitempty"`
	OperationSuccess bool   `json:"operationSuccess"`
	Message          string `json:"message,omitempty"`
}

type MonitorEvent struct {
	Header
	MonitorID     string          `json:"monitorId"`
	EventID       string          `json:"eventId"`
	Stamp         Stamp           `json:"stamp"`
	NewNodeID     string          `json:"newNodeid,omitempty"`
	ID            string          `json:"id,omitempty"`
	AttributeKey  string          `json:"attributeKey,omitempty"`
	Value         json.RawMessage `json:"value,omitempty"`
	PreviousValue json.RawMessage `json:"previousValue,omitempty"`
}

// Result is implemented by every reply envelope.
type Result interface {
	Success() bool
	// Failure is the message explaining an unsuccessful reply.
	Failure() string
}

func (r UpdateResult) Success() bool        { return r.UpdateSuccess }
func (r QueryResult) Success() bool         { return r.QuerySuccess }
func (r FunctionBlockResult) Success() bool { return r.OperationSuccess }

func (r UpdateResult) Failure() string        { return r.Message }
func (r QueryResult) Failure() string         { return r.Message }
func (r FunctionBlockResult) Failure() string { return r.Message }
