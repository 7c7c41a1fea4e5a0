package synthesis

import "strings"

// craftSystemPrompt constrains every synthesized artifact.
const craftSystemPrompt = `You write Go functions for an interpreter that only runs a single
"package main" file. Reply with Go code only, nothing else.

Rules:
- Exactly one exported-or-unexported top-level function implements the request; it must be the first function in the file.
- Parameters may only use the types int, int64, float64, string and bool. No variadic parameters.
- Anything the function needs (credentials, configuration, limits) must be a parameter.
- Return a single value, or a value and an error.
- Do not declare package level variables. Do not use goroutines or channels.
- Do not print anything and do not read input.
- Do not comment the code. Only handle errors where necessary.
- Only import these standard library packages: %s.`

const describeSystemPrompt = `You describe Go functions as JSON function-calling schemas.
Reply with JSON only, nothing else.`

// functionSchemaTemplate shows the shape Describe expects.
const functionSchemaTemplate = `{
  "type": "function",
  "function": {
    "name": "[name of the function]",
    "description": "[what the function does]",
    "parameters": {
      "type": "object",
      "properties": {
        "[parameter name]": {
          "type": "[JSON schema type]",
          "description": "[parameter description]"
        }
      },
      "required": ["[parameter name]"]
    }
  }
}`

const repairSystemPrompt = `You fix Go functions. Reply with the complete corrected Go code only, nothing else.
Keep the function name, the parameter names and the return type exactly as they are.
Follow the same rules the function was written under: primitive parameter types only,
no variadic parameters, no package level variables, no goroutines, no printing.`

func joinPackages(pkgs []string) string {
	if len(pkgs) == 0 {
		return "none"
	}
	return strings.Join(pkgs, ", ")
}
