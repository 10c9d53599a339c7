package builtin

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Atomheart-Father/agentflow/runtime/agent/tools"
)

// CalculatorToolName is the registered name of the arithmetic tool.
const CalculatorToolName tools.Ident = "math_eval"

var calculatorSchema = []byte(`{
	"type": "object",
	"properties": {
		"expression": {"type": "string", "description": "a simple arithmetic expression, e.g. '2 + 2'"}
	},
	"required": ["expression"]
}`)

// NewCalculator builds the math_eval tool spec. It supports only the four
// basic binary operators over two numeric operands, which is all the S1-S6
// scenarios and the Planner's prompt discipline require; anything richer
// belongs to a real expression-evaluation library, not this reference tool.
func NewCalculator() tools.Spec {
	return tools.Spec{
		Name:        CalculatorToolName,
		Description: "Evaluates a simple two-operand arithmetic expression.",
		Timeout:     3 * time.Second,
		Payload:     tools.TypeSpec{Name: "CalculatorArgs", Schema: calculatorSchema, Codec: tools.AnyJSONCodec},
		Invoke: func(args map[string]any) tools.Result {
			expr, _ := args["expression"].(string)
			result, err := evalBinary(expr)
			if err != nil {
				return tools.Failed(CalculatorToolName, tools.ErrorCodeInvalidInput, err.Error())
			}
			return tools.Success(CalculatorToolName, map[string]any{"result": result})
		},
	}
}

func evalBinary(expr string) (float64, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, fmt.Errorf("unsupported expression %q", expr)
	}
	for _, op := range []string{"+", "-", "*", "/"} {
		idx := strings.Index(expr[1:], op)
		if idx < 0 {
			continue
		}
		idx++ // account for the skipped leading rune (handles a leading '-')
		left, right := strings.TrimSpace(expr[:idx]), strings.TrimSpace(expr[idx+1:])
		lv, errL := strconv.ParseFloat(left, 64)
		rv, errR := strconv.ParseFloat(right, 64)
		if errL != nil || errR != nil {
			continue
		}
		switch op {
		case "+":
			return lv + rv, nil
		case "-":
			return lv - rv, nil
		case "*":
			return lv * rv, nil
		case "/":
			if rv == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return lv / rv, nil
		}
	}
	v, err := strconv.ParseFloat(expr, 64)
	if err != nil {
		return 0, fmt.Errorf("unsupported expression %q", expr)
	}
	return v, nil
}
