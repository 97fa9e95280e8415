// Package handler turns typed request handlers into http.HandlerFunc.
//
// A handler receives a bound request struct and returns a Response. Failures
// are returned as Fail(err) and rendered by one ErrorHandler, so every route
// shares the same error envelope and logging:
//
//	func (h *Handlers) getDocument(ctx handler.Context, req idRequest) handler.Response {
//		doc, err := h.study.GetDocument(ctx, userID(ctx), req.ID)
//		if err != nil {
//			return handler.Fail(err)
//		}
//		return handler.JSON(doc)
//	}
//
//	r.Get("/documents/{id}", handler.Wrap(h.getDocument,
//		handler.WithBinders(binder.Path(chi.URLParam)),
//		handler.WithErrorHandler(errs),
//	))
package handler
