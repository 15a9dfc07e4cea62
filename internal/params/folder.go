package params

import (
	"fmt"
	"strings"

	"github.com/taoyao-code/crsfctl/internal/protocol/crsf"
)

// FolderEntry 导航栈中的一层
type FolderEntry struct {
	Target uint8  `json:"target"`
	Origin uint8  `json:"origin"`
	Name   string `json:"name"`
}

type folderNav struct {
	current uint8
	stack   []FolderEntry
}

func (f *folderNav) reset() {
	f.current = 0
	f.stack = nil
}

func (f *folderNav) push(target uint8, name string) {
	f.stack = append(f.stack, FolderEntry{Target: target, Origin: f.current, Name: name})
	f.current = target
}

func (f *folderNav) pop() bool {
	if len(f.stack) == 0 {
		return false
	}
	top := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	f.current = top.Origin
	return true
}

// refresh 文件夹名称可能随其他参数变化，从参数表同步
func (f *folderNav) refresh(table map[uint8]*crsf.Parameter) {
	for i := range f.stack {
		if p, ok := table[f.stack[i].Target]; ok && p.Name != f.stack[i].Name {
			f.stack[i].Name = p.Name
		}
	}
}

// NavigateToFolder 进入文件夹
func (s *Session) NavigateToFolder(id uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.paramLocked(id)
	if err != nil {
		return err
	}
	if !p.IsFolder() {
		return fmt.Errorf("%w: %d is %s", ErrNotFolder, id, p.Type)
	}
	s.folders.push(id, p.Name)
	return nil
}

// NavigateBack 返回上一层；已在根目录时返回 false
func (s *Session) NavigateBack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.folders.pop()
}

// CurrentFolder 当前文件夹号（0 为根）
func (s *Session) CurrentFolder() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.folders.current
}

// Breadcrumb 导航栈副本，根目录时为空
func (s *Session) Breadcrumb() []FolderEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FolderEntry, len(s.folders.stack))
	copy(out, s.folders.stack)
	return out
}

// BreadcrumbPath 形如 "RF > Power" 的路径
func (s *Session) BreadcrumbPath() string {
	bc := s.Breadcrumb()
	names := make([]string, len(bc))
	for i, e := range bc {
		names[i] = e.Name
	}
	return strings.Join(names, " > ")
}
