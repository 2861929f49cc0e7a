package ee

import "strconv"

// Wire types for the serialized expression graph accepted by the compute
// platform's REST API. A graph is a table of value nodes keyed by string,
// with one key designated as the result.

type Expression struct {
	Values map[string]*ValueNode `json:"values"`
	Result string                `json:"result"`
}

type ValueNode struct {
	ConstantValue           interface{}         `json:"constantValue,omitempty"`
	FunctionInvocationValue *FunctionInvocation `json:"functionInvocationValue,omitempty"`
	FunctionDefinitionValue *FunctionDefinition `json:"functionDefinitionValue,omitempty"`
	ArgumentReference       string              `json:"argumentReference,omitempty"`
	ValueReference          string              `json:"valueReference,omitempty"`
}

type FunctionInvocation struct {
	FunctionName string                `json:"functionName"`
	Arguments    map[string]*ValueNode `json:"arguments"`
}

type FunctionDefinition struct {
	ArgumentNames []string `json:"argumentNames"`
	Body          string   `json:"body"`
}

// Expr is an in-memory node of a lazily built computation graph. Nothing is
// evaluated locally; graphs are serialized and shipped to the compute
// platform in a single call.
type Expr struct {
	constant interface{}
	fn       string
	args     map[string]*Expr
	lambda   *lambdaDef
	argRef   string
}

type lambdaDef struct {
	argNames []string
	body     *Expr
}

func Constant(v interface{}) *Expr {
	return &Expr{constant: v}
}

func Invoke(name string, args map[string]*Expr) *Expr {
	if args == nil {
		args = map[string]*Expr{}
	}
	return &Expr{fn: name, args: args}
}

func ArgRef(name string) *Expr {
	return &Expr{argRef: name}
}

func Lambda(argNames []string, body *Expr) *Expr {
	return &Expr{lambda: &lambdaDef{argNames: argNames, body: body}}
}

type serializer struct {
	values map[string]*ValueNode
	keys   map[*Expr]string
	next   int
}

// Serialize flattens the graph into the wire form. Nodes reached more than
// once (e.g. an image used as both input and mask) serialize to a single
// table entry.
func (e *Expr) Serialize() *Expression {
	s := &serializer{
		values: make(map[string]*ValueNode),
		keys:   make(map[*Expr]string),
	}
	result := s.visit(e)
	return &Expression{Values: s.values, Result: result}
}

func (s *serializer) visit(e *Expr) string {
	if key, ok := s.keys[e]; ok {
		return key
	}
	key := strconv.Itoa(s.next)
	s.next++
	s.keys[e] = key

	node := &ValueNode{}
	switch {
	case e.fn != "":
		inv := &FunctionInvocation{
			FunctionName: e.fn,
			Arguments:    make(map[string]*ValueNode),
		}
		for name, arg := range e.args {
			inv.Arguments[name] = &ValueNode{ValueReference: s.visit(arg)}
		}
		node.FunctionInvocationValue = inv
	case e.lambda != nil:
		node.FunctionDefinitionValue = &FunctionDefinition{
			ArgumentNames: e.lambda.argNames,
			Body:          s.visit(e.lambda.body),
		}
	case e.argRef != "":
		node.ArgumentReference = e.argRef
	default:
		node.ConstantValue = e.constant
	}
	s.values[key] = node
	return key
}
