// 包 db 包含服务端共用的 sql 操作方法：事件日志、解密审核归档和查看公钥
package db

import (
	_ "github.com/mattn/go-sqlite3"
)

// --- 初始化：建表 ---

// table Events
// uuid TEXT PRIMARY KEY
// kind TEXT
// payroll TEXT, 0x 开头的 hex，可以为空
// request TEXT, 解密请求 uuid，可以为空
// actor TEXT
// status TEXT
// detail TEXT
// timestamp INTEGER, unix 秒
func CreateEventTable() string {
	return `
		CREATE TABLE IF NOT EXISTS Events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT UNIQUE NOT NULL,
			kind TEXT NOT NULL,
			payroll TEXT,
			request TEXT,
			actor TEXT,
			status TEXT,
			detail TEXT,
			timestamp INTEGER
		);
	`
}

// table DecryptedReviews
// 每个工资单只写入一次，payroll 为主键
func CreateDecryptedReviewTable() string {
	return `
		CREATE TABLE IF NOT EXISTS DecryptedReviews (
			payroll TEXT PRIMARY KEY NOT NULL,
			request TEXT NOT NULL,
			totalCompensation INTEGER,
			netPay INTEGER,
			marketPercentile INTEGER,
			compensationBand INTEGER,
			decisionCode INTEGER,
			decryptedAt INTEGER
		);
	`
}

// table ViewingKeys
// user TEXT PRIMARY KEY
// publicKey BLOB <- []byte 被 rlwe.PublicKey.MarshalBinary 编码
func CreateViewingKeyTable() string {
	return `
		CREATE TABLE IF NOT EXISTS ViewingKeys (
			user TEXT PRIMARY KEY NOT NULL,
			publicKey BLOB NOT NULL,
			updatedAt INTEGER
		);
	`
}

// Only used in Client
// table Submissions 记录本地提交过的工资单，用于找回 ID
func CreateSubmissionTable() string {
	return `
		CREATE TABLE IF NOT EXISTS Submissions (
			payroll TEXT PRIMARY KEY NOT NULL,
			employee TEXT NOT NULL,
			nonce TEXT NOT NULL,
			submittedAt INTEGER
		);
	`
}
