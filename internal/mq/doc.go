// Package mq — сигналы фоновому выполнению через RabbitMQ.
//
// API публикует background.started при запуске фонового выполнения батча,
// worker потребляет очередь background.wakeup и сразу ищет работу, не
// дожидаясь очередного опроса хранилища. Сообщения только будят worker:
// потеря сообщения задерживает выполнение до следующего опроса.
//
// Структура:
//   - connection.go — соединение с переподключением
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — конверт сообщения и публикация
//   - consumer.go   — потребление с ack/nack
package mq
