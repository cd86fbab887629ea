package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

type Item struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Server struct {
	items  map[int]*Item
	nextID int
}

func NewServer() *Server {
	return &Server{items: make(map[int]*Item), nextID: 1}
}

func (s *Server) HandleList(w http.ResponseWriter, r *http.Request) {
	out := make([]*Item, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	item := &Item{
		ID:        s.nextID,
		Name:      input.Name,
		CreatedAt: time.Now(),
	}
	s.items[item.ID] = item
	s.nextID++

	writeJSON(w, http.StatusCreated, item)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func main() {
	s := NewServer()
	http.HandleFunc("/items", s.HandleList)
	http.HandleFunc("/items/create", s.HandleCreate)
	log.Fatal(http.ListenAndServe(":8080", nil))
}
