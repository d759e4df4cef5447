package server

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net/http"
	"path/filepath"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/mcode/compiler"
	"github.com/chazu/mcode/compiler/hash"
)

// CompileProcedure is the Connect procedure path of the compile service.
const CompileProcedure = "/mcode.v1.CompileService/Compile"

// CompileService compiles microcode buffers sent over Connect, gRPC or
// gRPC-Web. Requests and responses are google.protobuf.Struct messages so
// the service needs no generated code:
//
//	request:  {source, name?, files?: {path: source}, env?: {...}, wrap?}
//	response: {declarations, body, warnings, listing, digest}
type CompileService struct {
	isa *compiler.InstructionSet
}

// NewCompileService creates a CompileService for the MDrive instruction set.
func NewCompileService() *CompileService {
	return &CompileService{isa: compiler.MDrive()}
}

// Handler returns the procedure path and HTTP handler to mount.
func (s *CompileService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	return CompileProcedure, connect.NewUnaryHandler(CompileProcedure, s.Compile, opts...)
}

// Compile compiles the request source with the supplied environment and
// include files. Compile errors are reported as CodeInvalidArgument.
func (s *CompileService) Compile(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()

	source := fields["source"].GetStringValue()
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}
	name := fields["name"].GetStringValue()
	if name == "" {
		name = "main.mxt"
	}

	var values map[string]any
	if env := fields["env"].GetStructValue(); env != nil {
		values = integralNumbers(env.AsMap()).(map[string]any)
	}
	files := compiler.MapLoader{}
	if inc := fields["files"].GetStructValue(); inc != nil {
		for path, v := range inc.GetFields() {
			if _, ok := v.GetKind().(*structpb.Value_StringValue); !ok {
				return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("files.%s: want a string", path))
			}
			files[filepath.Clean(path)] = v.GetStringValue()
		}
	}

	env := compiler.NewEnvironment(values)
	env.Loader = files
	prog, err := compiler.CompileSource(source, name, env, compiler.WithISA(s.isa))
	if err != nil {
		var syn *compiler.SyntaxError
		var ce *compiler.CompileError
		if errors.As(err, &syn) || errors.As(err, &ce) {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	var listing bytes.Buffer
	if err := prog.Compose(&listing, fields["wrap"].GetBoolValue()); err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	warnings := make([]string, len(prog.Warnings))
	for i, w := range prog.Warnings {
		warnings[i] = w.String()
	}
	digest := hash.Listing(prog)

	resp, err := structpb.NewStruct(map[string]any{
		"declarations": stringList(prog.Declarations()),
		"body":         stringList(prog.Body()),
		"warnings":     stringList(warnings),
		"listing":      listing.String(),
		"digest":       hex.EncodeToString(digest[:]),
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(resp), nil
}

func stringList(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}

// integralNumbers converts whole JSON numbers to int64 so they format and
// evaluate as integers.
func integralNumbers(v any) any {
	switch x := v.(type) {
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
		return x
	case map[string]any:
		for k, item := range x {
			x[k] = integralNumbers(item)
		}
		return x
	case []any:
		for i, item := range x {
			x[i] = integralNumbers(item)
		}
		return x
	}
	return v
}
