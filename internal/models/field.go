package models

import "encoding/json"

// Field различает три состояния поля при частичном обновлении:
// ключ отсутствует во входных данных, ключ передан со значением null,
// ключ передан со значением. Для create/update валидации правил эта
// разница значима (см. rule_validator).
type Field[T any] struct {
	set   bool
	value *T
}

// FieldValue создаёт поле с установленным значением.
func FieldValue[T any](v T) Field[T] {
	return Field[T]{set: true, value: &v}
}

// FieldNull создаёт поле, явно установленное в null.
func FieldNull[T any]() Field[T] {
	return Field[T]{set: true}
}

// IsSet сообщает, присутствовал ли ключ во входных данных.
func (f Field[T]) IsSet() bool {
	return f.set
}

// Get возвращает значение и признак его наличия (установлено и не null).
func (f Field[T]) Get() (T, bool) {
	if f.value == nil {
		var zero T
		return zero, false
	}
	return *f.value, true
}

// Ptr возвращает указатель на значение либо nil.
func (f Field[T]) Ptr() *T {
	return f.value
}

// UnmarshalJSON вызывается только для присутствующих ключей,
// поэтому сам факт вызова означает set=true.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.set = true
	if string(data) == "null" {
		f.value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f.value = &v
	return nil
}

// MarshalJSON сериализует значение либо null.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*f.value)
}
