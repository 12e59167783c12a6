package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Character は作中に登場するキャラクターの視覚情報です。
type Character struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	VisualCues []string `json:"visual_cues"` // 生成プロンプトに注入する外見上の特徴
	Seed       int64    `json:"seed"`
	IsPrimary  bool     `json:"is_primary"`
}

// CharactersMap は ID をキーとしたキャラクターの検索用マップです。
type CharactersMap map[string]Character

// LoadCharacters は JSON ファイルからキャラクター定義を読み込みます。
func LoadCharacters(path string) (CharactersMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("キャラクターファイルの読み込みに失敗しました: %w", err)
	}
	return GetCharacters(data)
}

// GetCharacters は JSON バイト列からキャラクターマップをパースします。キャッシュは行いません。
func GetCharacters(charactersJSON []byte) (CharactersMap, error) {
	var chars CharactersMap
	if err := json.Unmarshal(charactersJSON, &chars); err != nil {
		return nil, fmt.Errorf("キャラクター情報のJSONパースに失敗しました: %w", err)
	}
	return chars, nil
}

func (c Character) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.ID)
}

// FindCharacter は ID (大文字小文字を区別しない) からキャラクターを特定します。
func (m CharactersMap) FindCharacter(id string) *Character {
	if m == nil {
		return nil
	}
	if char, ok := m[id]; ok {
		return &char
	}
	if char, ok := m[strings.ToLower(id)]; ok {
		return &char
	}
	return nil
}

// Mentioned は text 中に名前が現れるキャラクターを返します。
// 出現位置の早い順に並べ、同じ位置なら ID 順にするため結果は決定論的です。
func (m CharactersMap) Mentioned(text string) []Character {
	lower := strings.ToLower(text)
	type hit struct {
		pos  int
		char Character
	}
	var hits []hit
	for _, c := range m {
		if c.Name == "" {
			continue
		}
		if pos := strings.Index(lower, strings.ToLower(c.Name)); pos >= 0 {
			hits = append(hits, hit{pos: pos, char: c})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].pos != hits[j].pos {
			return hits[i].pos < hits[j].pos
		}
		return hits[i].char.ID < hits[j].char.ID
	})

	chars := make([]Character, len(hits))
	for i, h := range hits {
		chars[i] = h.char
	}
	return chars
}

// SeedOf は設定済みの Seed を返し、未設定なら名前から決定論的に生成します。
func (c Character) SeedOf() int64 {
	if c.Seed != 0 {
		return c.Seed
	}
	return int64(GetSeedFromName(c.Name))
}

// GetSeedFromName は名前から決定論的なシード値を生成します。
func GetSeedFromName(name string) int32 {
	hash := sha256.Sum256([]byte(name))
	seed := int32(binary.BigEndian.Uint32(hash[:4]))
	// Gemini のシード値は正の数が望ましいため最上位ビットを落とします
	return seed & 0x7FFFFFFF
}
