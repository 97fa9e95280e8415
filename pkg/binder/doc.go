// Package binder fills request structs from JSON bodies, query strings,
// path parameters and multipart forms.
//
// Each binder reads its own struct tag (`query`, `path`, `form`, `file`) and
// leaves other fields alone, so several binders can be applied to one struct:
//
//	type uploadRequest struct {
//		Title string                `form:"title"`
//		File  *multipart.FileHeader `file:"file"`
//	}
//
// Binders return ErrNotApplicable when the request carries nothing for them,
// letting optional bodies through.
package binder
