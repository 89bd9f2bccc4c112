// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package sema

import "axc/ast"

// TypeInfo is the width information the x86-64 selector (§4.5.1) consults
// to size every Mov/Movsx: it is collected after Analyse has already
// renamed every declaration to its unique name, so lookups here and in TAC
// use the same names.
type TypeInfo struct {
	Vars  map[string]ast.Type // unique variable/parameter name -> type
	Funcs map[string]ast.Type // function name -> return type
}

// CollectTypes walks an already-analysed Program and records the type of
// every variable, parameter, and function return. Call after Analyse.
func CollectTypes(prog *ast.Program) *TypeInfo {
	info := &TypeInfo{Vars: make(map[string]ast.Type), Funcs: make(map[string]ast.Type)}
	for _, d := range prog.Decls {
		collectTypesDecl(d, info)
	}
	return info
}

func collectTypesDecl(d ast.Decl, info *TypeInfo) {
	switch d := d.(type) {
	case *ast.FunctionDef:
		info.Funcs[d.Name] = d.ReturnType
		for _, p := range d.Params {
			info.Vars[p.Name] = p.Type
		}
		if d.Body != nil {
			collectTypesStmt(d.Body, info)
		}
	case *ast.VariableDef:
		info.Vars[d.Name] = d.Type
	}
}

func collectTypesStmt(s ast.Stmt, info *TypeInfo) {
	switch s := s.(type) {
	case *ast.Compound:
		for _, item := range s.Items {
			switch it := item.(type) {
			case *ast.VariableDef:
				info.Vars[it.Name] = it.Type
			case ast.Stmt:
				collectTypesStmt(it, info)
			}
		}
	case *ast.IfStmt:
		collectTypesStmt(s.Then, info)
		if s.Else != nil {
			collectTypesStmt(s.Else, info)
		}
	case *ast.WhileStmt:
		collectTypesStmt(s.Body, info)
	case *ast.DoWhileStmt:
		collectTypesStmt(s.Body, info)
	case *ast.ForStmt:
		if s.Init.Decl != nil {
			info.Vars[s.Init.Decl.Name] = s.Init.Decl.Type
		}
		collectTypesStmt(s.Body, info)
	case *ast.SwitchStmt:
		collectTypesStmt(s.Body, info)
	case *ast.CaseStmt:
		collectTypesStmt(s.Stmt, info)
	case *ast.LabeledStmt:
		collectTypesStmt(s.Stmt, info)
	}
}

// Width returns the byte width (4 or 8) of a TAC-level name, defaulting to
// 4 (int) for compiler-generated temporaries, whose type is not tracked
// through arbitrary sub-expressions (see DESIGN.md).
func (t *TypeInfo) Width(name string) int {
	if ty, ok := t.Vars[name]; ok {
		return ty.Size()
	}
	return ast.TypeInt.Size()
}
