package response

import (
	"encoding/json"
	"fmt"
	"net/http"

	"aiaxstock/pkg/apierror"
	"aiaxstock/pkg/csvexport"
)

// Response is the success envelope every JSON endpoint shares.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// JSON sends data in the success envelope.
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	write(w, statusCode, Response{Success: true, Data: data})
}

// JSONWithMeta sends one page of a listing with its paging metadata.
func JSONWithMeta(w http.ResponseWriter, statusCode int, data interface{}, page, limit int, total int64) {
	meta := &Meta{Page: page, Limit: limit, Total: total}
	if limit > 0 {
		meta.Pages = int((total + int64(limit) - 1) / int64(limit))
	}
	write(w, statusCode, Response{Success: true, Data: data, Meta: meta})
}

// Error sends err as an API error envelope.
func Error(w http.ResponseWriter, err error) {
	apierror.From(err).Write(w)
}

func write(w http.ResponseWriter, statusCode int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// NoContent sends a 204 No Content response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Created sends a 201 Created response with the created resource.
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

// OK sends a 200 OK response.
func OK(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

// CSV sends rows as a downloadable CSV attachment.
func CSV(w http.ResponseWriter, filename string, header []string, rows [][]string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_ = csvexport.Write(w, header, rows)
}
