package validation

// Code — стабильный код ошибки валидации правила промоакции.
type Code string

const (
	CodeRequired                     Code = "REQUIRED"
	CodeInvalid                      Code = "INVALID"
	CodeInvalidPrecision             Code = "INVALID_PRECISION"
	CodeMixedPredicates              Code = "MIXED_PREDICATES"
	CodeMixedPromotionPredicates     Code = "MIXED_PROMOTION_PREDICATES"
	CodeMissingChannels              Code = "MISSING_CHANNELS"
	CodeMultipleCurrenciesNotAllowed Code = "MULTIPLE_CURRENCIES_NOT_ALLOWED"
	CodeRulesNumberLimit             Code = "RULES_NUMBER_LIMIT"
	CodeDuplicatedInputItem          Code = "DUPLICATED_INPUT_ITEM"
)

// Error — одна ошибка, привязанная к логическому полю ввода.
// Index заполняется в батчевых контекстах (позиция правила в списке).
type Error struct {
	Message string `json:"message"`
	Code    Code   `json:"code"`
	Index   *int   `json:"index,omitempty"`
}

// ErrorMap — итоговый результат валидации: поле -> упорядоченный список ошибок.
type ErrorMap map[string][]Error

// IsEmpty сообщает об отсутствии ошибок.
func (m ErrorMap) IsEmpty() bool {
	return len(m) == 0
}

// Builder накапливает ошибки по полям и отдаёт неизменяемый результат.
// Индекс (для батчевых операций) проставляется на каждую добавленную ошибку.
type Builder struct {
	index *int
	errs  ErrorMap
}

// NewBuilder создаёт сборщик ошибок; index может быть nil.
func NewBuilder(index *int) *Builder {
	return &Builder{index: index, errs: make(ErrorMap)}
}

// Add добавляет ошибку к полю.
func (b *Builder) Add(field, message string, code Code) {
	b.errs[field] = append(b.errs[field], Error{Message: message, Code: code, Index: b.index})
}

// HasErrors сообщает, накоплены ли ошибки.
func (b *Builder) HasErrors() bool {
	return len(b.errs) > 0
}

// Has сообщает, есть ли ошибки по конкретному полю.
func (b *Builder) Has(field string) bool {
	return len(b.errs[field]) > 0
}

// Build возвращает накопленные ошибки; nil, если их нет.
func (b *Builder) Build() ErrorMap {
	if len(b.errs) == 0 {
		return nil
	}
	return b.errs
}
