// Package tsparser is the Parser Layer (spec §4.3): one tree-sitter grammar
// per language family, lazily constructed on first use, plus the query set
// the Structural Extractor runs over each parse tree to pull def/scope/
// import/member captures out. It knows nothing about DefFact, RefFact, or
// any other fact type — that translation belongs to internal/extractor.
package tsparser

import (
	"fmt"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
	tree_sitter_zig "github.com/tree-sitter-grammars/tree-sitter-zig/bindings/go"

	"github.com/codeplane-dev/codeplane/internal/types"
)

// grammar bundles a tree-sitter language pointer with the one combined
// query this package runs against every parse of that family. Capture
// names follow a fixed vocabulary the extractor switches on:
// def.<kind>/def.<kind>.name, scope.<kind>, import/import.source,
// typeannotation, member, ref.call.name.
type grammar struct {
	language func() *tree_sitter.Language
	query    string
}

var grammars = map[types.LanguageFamily]grammar{
	"go": {
		language: func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_go.Language()) },
		query: `
			(function_declaration name: (identifier) @def.function.name) @def.function
			(method_declaration
				receiver: (parameter_list) @def.method.receiver
				name: (field_identifier) @def.method.name) @def.method
			(type_declaration (type_spec name: (type_identifier) @def.type.name)) @def.type
			(func_literal) @scope.function
			(block) @scope.block
			(import_spec path: (interpreted_string_literal) @import.source) @import
			(short_var_declaration left: (expression_list (identifier) @member.local.name))
			(selector_expression
				operand: (identifier) @member.receiver
				field: (field_identifier) @member.name) @member
			(call_expression function: (identifier) @ref.call.name)
		`,
	},
	"python": {
		language: func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_python.Language()) },
		query: `
			(class_definition
				body: (block
					(function_definition name: (identifier) @def.method.name))) @def.method
			(function_definition name: (identifier) @def.function.name) @def.function
			(class_definition name: (identifier) @def.class.name) @def.class
			(function_definition body: (block) @scope.function)
			(class_definition body: (block) @scope.class)
			(import_statement) @import
			(import_from_statement) @import
			(attribute
				object: (identifier) @member.receiver
				attribute: (identifier) @member.name) @member
			(call function: (identifier) @ref.call.name)
		`,
	},
	"javascript": {
		language: func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_javascript.Language()) },
		query: `
			(function_declaration name: (identifier) @def.function.name) @def.function
			(generator_function_declaration name: (identifier) @def.function.name) @def.function
			(variable_declarator
				name: (identifier) @def.function.name
				value: [(arrow_function) (function_expression) (generator_function)]) @def.function
			(method_definition name: (property_identifier) @def.method.name) @def.method
			(class_declaration name: (identifier) @def.class.name) @def.class
			(statement_block) @scope.block
			(export_statement declaration: (_) @export)
			(import_statement source: (string) @import.source) @import
			(member_expression
				object: (identifier) @member.receiver
				property: (property_identifier) @member.name) @member
			(call_expression function: (identifier) @ref.call.name)
		`,
	},
	"typescript": {
		language: func() *tree_sitter.Language {
			return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
		},
		query: `
			(function_declaration name: (identifier) @def.function.name) @def.function
			(generator_function_declaration name: (identifier) @def.function.name) @def.function
			(method_definition name: (property_identifier) @def.method.name) @def.method
			(function_expression name: (identifier) @def.function.name) @def.function
			(class_declaration name: (type_identifier) @def.class.name) @def.class
			(interface_declaration name: (type_identifier) @def.interface.name) @def.interface
			(type_alias_declaration name: (type_identifier) @def.type.name) @def.type
			(enum_declaration name: (identifier) @def.enum.name) @def.enum
			(statement_block) @scope.block
			(export_statement declaration: (_) @export)
			(import_statement source: (string) @import.source) @import
			(member_expression
				object: (identifier) @member.receiver
				property: (property_identifier) @member.name) @member
			(type_annotation (type_identifier) @typeannotation.type)
			(call_expression function: (identifier) @ref.call.name)
		`,
	},
	"rust": {
		language: func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_rust.Language()) },
		query: `
			(impl_item
				body: (declaration_list
					(function_item name: (identifier) @def.method.name))) @def.method
			(trait_item
				body: (declaration_list
					(function_item name: (identifier) @def.method.name))) @def.method
			(function_item name: (identifier) @def.function.name) @def.function
			(struct_item name: (type_identifier) @def.struct.name) @def.struct
			(enum_item name: (type_identifier) @def.enum.name) @def.enum
			(trait_item name: (type_identifier) @def.interface.name) @def.interface
			(type_item name: (type_identifier) @def.type.name) @def.type
			(block) @scope.block
			(use_declaration) @import
			(mod_item name: (identifier) @def.module.name) @def.module
			(field_expression
				value: (identifier) @member.receiver
				field: (field_identifier) @member.name) @member
			(call_expression function: (identifier) @ref.call.name)
		`,
	},
	"jvm": {
		language: func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_java.Language()) },
		query: `
			(method_declaration name: (identifier) @def.method.name) @def.method
			(constructor_declaration name: (identifier) @def.method.name) @def.method
			(class_declaration name: (identifier) @def.class.name) @def.class
			(record_declaration name: (identifier) @def.class.name) @def.class
			(interface_declaration name: (identifier) @def.interface.name) @def.interface
			(enum_declaration name: (identifier) @def.enum.name) @def.enum
			(field_declaration declarator: (variable_declarator name: (identifier) @def.field.name)) @def.field
			(class_body) @scope.class
			(block) @scope.block
			(import_declaration) @import
			(package_declaration) @import
			(field_access
				object: (identifier) @member.receiver
				field: (identifier) @member.name) @member
			(method_invocation name: (identifier) @ref.call.name)
		`,
	},
	"dotnet": {
		language: func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_csharp.Language()) },
		query: `
			(method_declaration name: (identifier) @def.method.name) @def.method
			(constructor_declaration name: (identifier) @def.method.name) @def.method
			(class_declaration name: (identifier) @def.class.name) @def.class
			(interface_declaration name: (identifier) @def.interface.name) @def.interface
			(struct_declaration name: (identifier) @def.struct.name) @def.struct
			(enum_declaration name: (identifier) @def.enum.name) @def.enum
			(property_declaration name: (identifier) @def.field.name) @def.field
			(field_declaration
				(variable_declaration
					(variable_declarator (identifier) @def.field.name))) @def.field
			(declaration_list) @scope.class
			(block) @scope.block
			(using_directive (qualified_name) @import.source) @import
			(using_directive (identifier) @import.source) @import
			(namespace_declaration name: (qualified_name) @def.module.name) @def.module
			(member_access_expression
				expression: (identifier) @member.receiver
				name: (identifier) @member.name) @member
			(invocation_expression function: (identifier) @ref.call.name)
		`,
	},
	"cpp": {
		language: func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_cpp.Language()) },
		query: `
			(function_definition declarator: (function_declarator declarator: (identifier) @def.function.name)) @def.function
			(class_specifier name: (type_identifier) @def.class.name) @def.class
			(struct_specifier name: (type_identifier) @def.struct.name) @def.struct
			(enum_specifier name: (type_identifier) @def.enum.name) @def.enum
			(compound_statement) @scope.block
			(preproc_include) @import
			(using_declaration) @import
			(field_expression
				argument: (identifier) @member.receiver
				field: (field_identifier) @member.name) @member
			(call_expression function: (identifier) @ref.call.name)
		`,
	},
	"php": {
		language: func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_php.LanguagePHP()) },
		query: `
			(class_declaration name: (name) @def.class.name) @def.class
			(interface_declaration name: (name) @def.interface.name) @def.interface
			(trait_declaration name: (name) @def.class.name) @def.class
			(enum_declaration name: (name) @def.enum.name) @def.enum
			(function_definition name: (name) @def.function.name) @def.function
			(method_declaration name: (name) @def.method.name) @def.method
			(compound_statement) @scope.block
			(namespace_use_declaration) @import
			(member_access_expression
				object: (variable_name) @member.receiver
				name: (name) @member.name) @member
			(function_call_expression function: (name) @ref.call.name)
		`,
	},
	"zig": {
		language: func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_zig.Language()) },
		query: `
			(function_declaration (identifier) @def.function.name) @def.function
			(variable_declaration
				(identifier) @def.struct.name
				(struct_declaration) @def.struct)
			(variable_declaration
				(identifier) @def.struct.name
				(union_declaration) @def.struct)
			(block) @scope.block
		`,
	},
}

// Language returns the tree-sitter language for family, or an error if the
// family has no grammar binding wired in (data/doc/config formats, and any
// family from the language registry this build doesn't ship a grammar for —
// those are still indexed lexically, just never structurally parsed).
func Language(family types.LanguageFamily) (*tree_sitter.Language, error) {
	g, ok := grammars[family]
	if !ok {
		return nil, fmt.Errorf("tsparser: no grammar registered for language family %q", family)
	}
	return g.language(), nil
}

// HasGrammar reports whether family can be structurally parsed.
func HasGrammar(family types.LanguageFamily) bool {
	_, ok := grammars[family]
	return ok
}

// FactQuery returns the combined capture query for family.
func FactQuery(family types.LanguageFamily) (string, error) {
	g, ok := grammars[family]
	if !ok {
		return "", fmt.Errorf("tsparser: no grammar registered for language family %q", family)
	}
	return g.query, nil
}
