// Package protocol holds the abstract syntax of global protocols and a
// recursive-descent parser for the surface syntax.
//
// The grammar, informally:
//
//	protocol   := "protocol" IDENT "(" roleDecl ("," roleDecl)* ")" block
//	roleDecl   := ["dynamic"] "role" IDENT
//	block      := "{" statement* "}"
//	statement  := message | choice | parallel | recursion | continue
//	            | call | create | invite | "end" ";"
//	message    := IDENT "->" IDENT ("," IDENT)* ":" IDENT "(" [IDENT] ")" ";"
//	choice     := "choice" "at" IDENT block ("or" block)+
//	parallel   := "par" block ("and" block)+
//	recursion  := "rec" IDENT block
//	continue   := "continue" IDENT ["with" block] ";"
//	call       := IDENT "calls" IDENT "(" [IDENT ("," IDENT)*] ")" ";"
//	create     := IDENT "creates" IDENT ["as" IDENT] ";"
//	invite     := IDENT "invites" IDENT ";"
//
// Identifiers admit trailing primes (W') so the usual session-type naming
// conventions parse unchanged. Every statement carries its source range.
package protocol
