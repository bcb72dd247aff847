// Package builtins links every built-in native into the runtime registry.
package builtins

import (
	_ "github.com/xirelogy/go-laye/internal/builtins/append"
	_ "github.com/xirelogy/go-laye/internal/builtins/assert"
	_ "github.com/xirelogy/go-laye/internal/builtins/index_exist"
	_ "github.com/xirelogy/go-laye/internal/builtins/index_read"
	_ "github.com/xirelogy/go-laye/internal/builtins/len"
	_ "github.com/xirelogy/go-laye/internal/builtins/print"
	_ "github.com/xirelogy/go-laye/internal/builtins/raise"
	_ "github.com/xirelogy/go-laye/internal/builtins/tostring"
	_ "github.com/xirelogy/go-laye/internal/builtins/typeof"
	_ "github.com/xirelogy/go-laye/internal/builtins/value_exist"
)
