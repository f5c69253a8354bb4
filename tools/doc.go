// Package tools defines the tool contract shared by the registry, the executor
// and the model adapters.
//
// Includes:
//   - Descriptor/ParamSpec: name, description, declarative parameter schema.
//   - ParamsFor[T](): derive ParamSpecs from a tagged Go input struct.
//   - Registry: name -> Tool mapping; Register/Lookup/All.
//   - Call/Result: invocation request and the uniform result envelope.
//
// Concrete tools live in the search and podcast subpackages.
package tools
